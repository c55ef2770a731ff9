package utils

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if hash == "password123" {
		t.Fatal("hash must not equal the plaintext")
	}

	if !CheckPassword("password123", hash) {
		t.Fatal("correct password must verify")
	}
	if CheckPassword("wrong-password", hash) {
		t.Fatal("wrong password must not verify")
	}
}

func TestHashSixDigitCode(t *testing.T) {
	// The same primitive backs the short one-time login codes.
	hash, err := HashPassword("123456")
	if err != nil {
		t.Fatalf("failed to hash code: %v", err)
	}
	if !CheckPassword("123456", hash) {
		t.Fatal("code must verify against its hash")
	}
	if CheckPassword("654321", hash) {
		t.Fatal("different code must not verify")
	}
}

func TestHashesAreSalted(t *testing.T) {
	first, err := HashPassword("123456")
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}
	second, err := HashPassword("123456")
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same input must differ")
	}
}
