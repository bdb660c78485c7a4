package idgen

import (
	"encoding/hex"
	"testing"
)

func TestHexLength(t *testing.T) {
	for _, n := range []int{1, 8, 16, 32} {
		id := Hex(n)
		if len(id) != n*2 {
			t.Errorf("Hex(%d) length = %d, want %d", n, len(id), n*2)
		}
		if _, err := hex.DecodeString(id); err != nil {
			t.Errorf("Hex(%d) produced non-hex output %q", n, id)
		}
	}
}

func TestHexUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := Hex(16)
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}
