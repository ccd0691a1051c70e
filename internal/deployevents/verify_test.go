package deployevents

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestVerifyHMACSHA256Accepts(t *testing.T) {
	secret := []byte("shh")
	body := []byte(`{"action":"completed"}`)

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	header := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if err := VerifyHMACSHA256(secret, header, body); err != nil {
		t.Fatalf("expected valid signature to pass, got %v", err)
	}
}

func TestVerifyHMACSHA256RejectsTamperedBody(t *testing.T) {
	secret := []byte("shh")
	body := []byte(`{"action":"completed"}`)

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	header := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if err := VerifyHMACSHA256(secret, header, []byte(`{"action":"tampered"}`)); err == nil {
		t.Fatalf("expected signature mismatch for tampered body")
	}
}

func TestVerifyHMACSHA256RejectsMissingPrefix(t *testing.T) {
	if err := VerifyHMACSHA256([]byte("shh"), "deadbeef", []byte("body")); err != ErrSignatureMismatch {
		t.Fatalf("expected ErrSignatureMismatch for missing sha256= prefix, got %v", err)
	}
}
