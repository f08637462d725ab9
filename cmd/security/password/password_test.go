package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// fastConfig keeps Argon2id cheap enough for unit tests.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 64
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestHashAndVerify_OK(t *testing.T) {
	cfg := fastConfig()

	h, err := cfg.Hash("pw123")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(h, "$argon2id$v=19$m=64,t=1,p=1$") {
		t.Fatalf("unexpected encoding: %s", h)
	}

	ok, err := cfg.Verify(h, "pw123")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}
}

func TestHash_SaltsDiffer(t *testing.T) {
	cfg := fastConfig()

	a, err := cfg.Hash("same")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := cfg.Hash("same")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct hashes for the same password")
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	cfg := fastConfig()

	h, err := cfg.Hash("this is a strong password 123!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := cfg.Verify(h, "wrong password")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestVerify_RejectsOversizedParams(t *testing.T) {
	strong := fastConfig()
	strong.Params.Iterations = 10
	h, err := strong.Hash("pw")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := fastConfig().Verify(h, "pw")
	if !errors.Is(err, ErrInvalidHash) || ok {
		t.Fatalf("expected ErrInvalidHash, got ok=%v err=%v", ok, err)
	}
}

func TestVerify_LegacyBcrypt(t *testing.T) {
	cfg := fastConfig()

	legacy, err := bcrypt.GenerateFromPassword([]byte("pw123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if !IsLegacy(string(legacy)) {
		t.Fatalf("expected bcrypt hash to be reported as legacy")
	}

	ok, err := cfg.Verify(string(legacy), "pw123")
	if err != nil || !ok {
		t.Fatalf("expected legacy match, got ok=%v err=%v", ok, err)
	}

	ok, err = cfg.Verify(string(legacy), "nope")
	if err != nil || ok {
		t.Fatalf("expected legacy mismatch, got ok=%v err=%v", ok, err)
	}

	ok, err = cfg.Verify("$2a$garbage", "pw123")
	if !errors.Is(err, ErrInvalidHash) || ok {
		t.Fatalf("expected ErrInvalidHash for malformed bcrypt, got ok=%v err=%v", ok, err)
	}
}

func TestValidate_MinMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.MinLength = 12
	cfg.Policy.MaxLength = 16

	if err := cfg.Validate("short"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}

	if err := cfg.Validate("this password is definitely too long"); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}

	if err := cfg.Validate("goodpassw0rd!"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestValidate_DefaultAcceptsShort(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate("x"); err != nil {
		t.Fatalf("expected single character password to pass, got %v", err)
	}
	if err := cfg.Validate("   "); err != nil {
		t.Fatalf("expected whitespace-only password to pass, got %v", err)
	}
	if err := cfg.Validate(strings.Repeat("a", 5000)); err != nil {
		t.Fatalf("expected long password to pass, got %v", err)
	}
	if err := cfg.Validate(""); err != ErrPasswordEmpty {
		t.Fatalf("expected ErrPasswordEmpty, got %v", err)
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	cfg := fastConfig()

	ok, err := cfg.Verify("not-a-hash", "whatever")
	if err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
	if ok {
		t.Fatalf("expected false")
	}
}

func TestPolicy_RejectVeryWeak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.RejectVeryWeak = true
	cfg.Policy.MinLength = 8

	if err := cfg.Validate("password"); err != ErrWeakPassword {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := cfg.Validate("11111111"); err != ErrWeakPassword {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := cfg.Validate("aaaaaaaaa"); err != ErrWeakPassword {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := cfg.Validate("a-very-ok-pass"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}
