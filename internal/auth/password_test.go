package auth

import (
	"errors"
	"strings"
	"testing"
)

func newTestPasswordService() *PasswordService {
	return NewPasswordServiceWithCost(4)
}

func TestHashVerify(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$04$") {
		t.Errorf("hash %q does not look like bcrypt cost 4", hash)
	}
	if err := ps.Verify(hash, "correct horse"); err != nil {
		t.Errorf("Verify(correct) error = %v", err)
	}
	if err := ps.Verify(hash, "wrong horse"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Verify(wrong) error = %v, want ErrPasswordMismatch", err)
	}
}

func TestHash_SaltsEachCall(t *testing.T) {
	ps := newTestPasswordService()
	a, _ := ps.Hash("same password")
	b, _ := ps.Hash("same password")
	if a == b {
		t.Error("two hashes of the same password should differ")
	}
}

func TestHash_Length(t *testing.T) {
	ps := newTestPasswordService()
	for _, pw := range []string{"short", strings.Repeat("x", MaxPasswordLength+1)} {
		if _, err := ps.Hash(pw); !errors.Is(err, ErrPasswordLength) {
			t.Errorf("Hash(len %d) error = %v, want ErrPasswordLength", len(pw), err)
		}
	}
	if _, err := ps.Hash(strings.Repeat("x", MaxPasswordLength)); err != nil {
		t.Errorf("Hash(72 bytes) error = %v", err)
	}
}

func TestVerify_MalformedHash(t *testing.T) {
	ps := newTestPasswordService()
	err := ps.Verify("not-a-hash", "whatever1")
	if err == nil || errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Verify(malformed) error = %v, want a non-mismatch error", err)
	}
}
