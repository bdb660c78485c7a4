package protocol

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancer-labs/arbiter/internal/dispute"
	"github.com/lancer-labs/arbiter/internal/judge"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(opts Options) (*gin.Engine, *Protocol) {
	p := New(judge.NewMemoryStore(), dispute.NewMemoryStore(), opts)
	r := gin.New()
	NewHandlers(p).RegisterRoutes(r.Group("/v1"))
	return r, p
}

func doJSON(t *testing.T, r *gin.Engine, method, path, caller string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func initViaHTTP(t *testing.T, r *gin.Engine) {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/v1/protocol/init", "", gin.H{
		"owner":     owner,
		"usdcToken": usdcToken,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestInitEndpoint(t *testing.T) {
	r, _ := setupRouter(Options{})

	// Operations before init map to 409.
	w := doJSON(t, r, http.MethodPost, "/v1/judges", judgeAddr(0), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "not_initialized", decode(t, w)["error"])

	initViaHTTP(t, r)

	// Second init is a conflict.
	w = doJSON(t, r, http.MethodPost, "/v1/protocol/init", "", gin.H{
		"owner": owner, "usdcToken": usdcToken,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_initialized", decode(t, w)["error"])

	// Malformed owner address.
	r2, _ := setupRouter(Options{})
	w = doJSON(t, r2, http.MethodPost, "/v1/protocol/init", "", gin.H{
		"owner": "not-an-address", "usdcToken": usdcToken,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDescribeEndpoint(t *testing.T) {
	r, _ := setupRouter(Options{VotesRequired: 3, DisputePrice: "25"})
	initViaHTTP(t, r)

	w := doJSON(t, r, http.MethodGet, "/v1/protocol", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, owner, body["owner"])
	assert.Equal(t, float64(3), body["votesRequired"])
	assert.Equal(t, "25", body["disputePrice"])
}

func TestJudgeEndpoints(t *testing.T) {
	r, _ := setupRouter(Options{})
	initViaHTTP(t, r)

	// Caller header is mandatory on registration.
	w := doJSON(t, r, http.MethodPost, "/v1/judges", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/v1/judges", judgeAddr(0), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, judgeAddr(0), body["address"])
	assert.Equal(t, "0.000000", body["balance"])

	// Duplicate registration.
	w = doJSON(t, r, http.MethodPost, "/v1/judges", judgeAddr(0), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_registered", decode(t, w)["error"])

	// Lookup.
	w = doJSON(t, r, http.MethodGet, "/v1/judges/"+judgeAddr(0), "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/judges/"+judgeAddr(1), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/judges/garbage", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Withdraw with nothing earned.
	w = doJSON(t, r, http.MethodPost, "/v1/judges/withdraw", judgeAddr(0), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "no_balance", decode(t, w)["error"])
}

func TestDisputeLifecycleOverHTTP(t *testing.T) {
	r, _ := setupRouter(Options{VotesRequired: 2, DisputePrice: "10"})
	initViaHTTP(t, r)

	for i := 0; i < 2; i++ {
		w := doJSON(t, r, http.MethodPost, "/v1/judges", judgeAddr(i), nil)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	// Create.
	w := doJSON(t, r, http.MethodPost, "/v1/disputes", requester, gin.H{
		"beneficiary": beneficiary,
		"reason":      "undelivered work",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, float64(1), created["id"])
	assert.Equal(t, "10.000000", created["pot"])
	id := "/v1/disputes/1"

	// Roster fills, voting opens.
	w = doJSON(t, r, http.MethodPost, id+"/voters", judgeAddr(0), nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, r, http.MethodPost, id+"/voters", judgeAddr(1), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(dispute.StatusVoting), decode(t, w)["status"])

	// Commit and reveal: judge 0 for, judge 1 against.
	secrets := [][]byte{[]byte("s0"), []byte("s1")}
	votes := []bool{true, false}
	for i := 0; i < 2; i++ {
		w = doJSON(t, r, http.MethodPost, id+"/commit", judgeAddr(i), gin.H{
			"commitHash": dispute.CommitmentHash(votes[i], secrets[i]),
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	// Wrong opening is 422.
	w = doJSON(t, r, http.MethodPost, id+"/reveal", judgeAddr(0), gin.H{
		"vote": false, "secret": "s0",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "commitment_mismatch", decode(t, w)["error"])

	for i := 0; i < 2; i++ {
		w = doJSON(t, r, http.MethodPost, id+"/reveal", judgeAddr(i), gin.H{
			"vote": votes[i], "secret": string(secrets[i]),
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	// 1-1 tie resolves for the beneficiary.
	w = doJSON(t, r, http.MethodGet, id+"/resolved", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["resolved"])

	w = doJSON(t, r, http.MethodGet, id+"/winner", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(dispute.WinnerBeneficiary), decode(t, w)["winner"])

	w = doJSON(t, r, http.MethodGet, id+"/votes", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tally := decode(t, w)
	assert.Equal(t, float64(1), tally["for"])
	assert.Equal(t, float64(1), tally["against"])

	// The winning-side judge can withdraw its reward.
	w = doJSON(t, r, http.MethodPost, "/v1/judges/withdraw", judgeAddr(1), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5.000000", decode(t, w)["amount"])
}

func TestHexSecretReveal(t *testing.T) {
	r, _ := setupRouter(Options{VotesRequired: 1})
	initViaHTTP(t, r)

	w := doJSON(t, r, http.MethodPost, "/v1/judges", judgeAddr(0), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(t, r, http.MethodPost, "/v1/disputes", requester, gin.H{"beneficiary": beneficiary})
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(t, r, http.MethodPost, "/v1/disputes/1/voters", judgeAddr(0), nil)
	require.Equal(t, http.StatusOK, w.Code)

	secret := []byte{0xde, 0xad, 0xbe, 0xef}
	w = doJSON(t, r, http.MethodPost, "/v1/disputes/1/commit", judgeAddr(0), gin.H{
		"commitHash": dispute.CommitmentHash(true, secret),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodPost, "/v1/disputes/1/reveal", judgeAddr(0), gin.H{
		"vote": true, "secret": "0xdeadbeef",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestEvidenceAndCloseEndpoints(t *testing.T) {
	r, _ := setupRouter(Options{})
	initViaHTTP(t, r)

	w := doJSON(t, r, http.MethodPost, "/v1/disputes", requester, gin.H{"beneficiary": beneficiary})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, "/v1/disputes/1/evidence", beneficiary, gin.H{"proof": "chat log"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, "/v1/disputes/1/evidence", judgeAddr(0), gin.H{"proof": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "not_participant", decode(t, w)["error"])

	// Only the requester may close.
	w = doJSON(t, r, http.MethodPost, "/v1/disputes/1/close", beneficiary, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodPost, "/v1/disputes/1/close", requester, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(dispute.StatusClosed), decode(t, w)["status"])
}

func TestOwnerEndpoints(t *testing.T) {
	r, _ := setupRouter(Options{})
	initViaHTTP(t, r)

	w := doJSON(t, r, http.MethodPost, "/v1/protocol/votes-required", requester, gin.H{"n": 7})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "not_owner", decode(t, w)["error"])

	w = doJSON(t, r, http.MethodPost, "/v1/protocol/votes-required", owner, gin.H{"n": 7})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(7), decode(t, w)["votesRequired"])

	// A quorum of zero is rejected by the protocol, not by JSON binding.
	w = doJSON(t, r, http.MethodPost, "/v1/protocol/votes-required", owner, gin.H{"n": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "must_be_positive", decode(t, w)["error"])

	// Omitting n entirely is a binding error.
	w = doJSON(t, r, http.MethodPost, "/v1/protocol/votes-required", owner, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decode(t, w)["error"])

	w = doJSON(t, r, http.MethodPost, "/v1/protocol/withdraw", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "empty_treasury", decode(t, w)["error"])
}

func TestDisputeValidation(t *testing.T) {
	r, _ := setupRouter(Options{})
	initViaHTTP(t, r)

	cases := []struct {
		name string
		body gin.H
	}{
		{"missing beneficiary", gin.H{}},
		{"bad beneficiary", gin.H{"beneficiary": "nope"}},
		{"bad amount", gin.H{"beneficiary": beneficiary, "amount": "12.3.4"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/v1/disputes", requester, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	// Unknown dispute id.
	w := doJSON(t, r, http.MethodGet, "/v1/disputes/99", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Malformed dispute id.
	w = doJSON(t, r, http.MethodGet, "/v1/disputes/zero", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
