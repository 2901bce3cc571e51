package loader

import (
	"testing"
	"time"
)

func TestSignAndVerifyBundleRoundTrips(t *testing.T) {
	secret := []byte("test-secret")
	program := []byte(`1 2 + '`)

	token, err := SignBundle(program, "glyphvm-test", time.Hour, secret)
	if err != nil {
		t.Fatalf("SignBundle: %v", err)
	}

	claims, err := VerifyBundle(token, program, secret)
	if err != nil {
		t.Fatalf("VerifyBundle: %v", err)
	}
	if claims.Issuer != "glyphvm-test" {
		t.Errorf("Issuer = %q, want %q", claims.Issuer, "glyphvm-test")
	}
	if claims.Digest == "" {
		t.Error("expected a non-empty digest claim")
	}
}

func TestVerifyBundleRejectsTamperedProgram(t *testing.T) {
	secret := []byte("test-secret")
	program := []byte(`1 2 + '`)

	token, err := SignBundle(program, "glyphvm-test", time.Hour, secret)
	if err != nil {
		t.Fatalf("SignBundle: %v", err)
	}

	tampered := []byte(`1 2 - '`)
	if _, err := VerifyBundle(token, tampered, secret); err == nil {
		t.Fatal("expected verification to fail for a program that doesn't match the signed digest")
	}
}

func TestVerifyBundleRejectsWrongSecret(t *testing.T) {
	program := []byte(`9 '`)
	token, err := SignBundle(program, "glyphvm-test", time.Hour, []byte("secret-a"))
	if err != nil {
		t.Fatalf("SignBundle: %v", err)
	}

	if _, err := VerifyBundle(token, program, []byte("secret-b")); err == nil {
		t.Fatal("expected verification to fail for a token signed with a different secret")
	}
}

func TestVerifyBundleRejectsExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	program := []byte(`9 '`)

	token, err := SignBundle(program, "glyphvm-test", -time.Minute, secret)
	if err != nil {
		t.Fatalf("SignBundle: %v", err)
	}

	if _, err := VerifyBundle(token, program, secret); err == nil {
		t.Fatal("expected verification to fail for an already-expired token")
	}
}
