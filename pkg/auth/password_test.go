package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPasswordAndCheckPasswordBcrypt(t *testing.T) {
	hash, err := HashPasswordWithCost("s3cret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "" || hash == "s3cret" {
		t.Fatalf("expected opaque non-empty hash, got %q", hash)
	}
	if !CheckPassword("s3cret", hash) {
		t.Fatalf("expected bcrypt password check to pass")
	}
	if CheckPassword("wrong", hash) {
		t.Fatalf("expected bcrypt password check to fail")
	}
}

func TestHashPasswordIsSalted(t *testing.T) {
	first, err := HashPasswordWithCost("same", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	second, err := HashPasswordWithCost("same", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if first == second {
		t.Fatalf("expected different hashes for the same password")
	}
}

func TestPasswordTruncationBoundary(t *testing.T) {
	base := strings.Repeat("a", MaxPasswordBytes)
	hash, err := HashPasswordWithCost(base+"X", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash long password: %v", err)
	}
	// Byte 73 onwards is ignored.
	if !CheckPassword(base+"Y", hash) {
		t.Fatalf("expected passwords differing after byte 72 to match")
	}
	if !CheckPassword(base, hash) {
		t.Fatalf("expected 72-byte prefix to match")
	}
	// Byte 72 still counts.
	if CheckPassword(strings.Repeat("a", MaxPasswordBytes-1)+"b", hash) {
		t.Fatalf("expected difference at byte 72 to fail")
	}
}

func TestPasswordTruncationSplitsMultibyteRune(t *testing.T) {
	password := strings.Repeat("a", MaxPasswordBytes-1) + "é"
	hash, err := HashPasswordWithCost(password, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !CheckPassword(password, hash) {
		t.Fatalf("expected same multibyte password to match")
	}
}

func TestCheckPasswordMalformedHash(t *testing.T) {
	cases := []string{"", "not-a-hash", "$2a$10$short", "salt$deadbeef"}
	for _, hash := range cases {
		if CheckPassword("anything", hash) {
			t.Fatalf("expected malformed hash %q to fail", hash)
		}
	}
}
