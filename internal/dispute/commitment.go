package dispute

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// CommitmentHash computes the canonical vote commitment:
//
//	keccak256(encodeVote(vote) ++ secret)
//
// encodeVote renders the vote as the ASCII literal "true" or "false"; the
// secret is appended as raw bytes. This is the single canonicalization point
// for both the commit and reveal sides — any other encoding fails
// verification at reveal time.
func CommitmentHash(vote bool, secret []byte) string {
	enc := append([]byte(strconv.FormatBool(vote)), secret...)
	return crypto.Keccak256Hash(enc).Hex()
}

// normalizeCommitHash validates a caller-supplied commitment hash and returns
// its canonical lowercase 0x form, so reveal-time comparison is byte-exact.
func normalizeCommitHash(h string) (string, error) {
	b, err := hexutil.Decode(h)
	if err != nil || len(b) != 32 {
		return "", ErrInvalidCommitment
	}
	return hexutil.Encode(b), nil
}
