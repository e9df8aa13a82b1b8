package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestVerifyPayloadSignature(t *testing.T) {
	payload := []byte(`{"TransID":"T1"}`)
	key := "bank-secret"

	mac := hmac.New(sha256.New, []byte(key))
	_, _ = mac.Write(payload)
	sig := hex.EncodeToString(mac.Sum(nil))

	if !VerifyPayloadSignature(key, payload, sig) {
		t.Fatal("expected signature to validate")
	}
	if !VerifyPayloadSignature(key, payload, "sha256="+sig) {
		t.Fatal("expected prefixed signature to validate")
	}
	if VerifyPayloadSignature("wrong", payload, sig) {
		t.Fatal("expected wrong key to fail")
	}
	if VerifyPayloadSignature(key, []byte(`{"TransID":"T2"}`), sig) {
		t.Fatal("expected tampered payload to fail")
	}
	if VerifyPayloadSignature(key, payload, "") || VerifyPayloadSignature("", payload, sig) {
		t.Fatal("expected missing signature or key to fail closed")
	}
	if VerifyPayloadSignature(key, payload, "not-hex") {
		t.Fatal("expected malformed signature to fail")
	}
}

func TestCallbackToken(t *testing.T) {
	token := CallbackToken("k1", "mpesa")

	if !VerifyCallbackToken("k1", "mpesa", token) {
		t.Fatal("expected token to validate")
	}
	if VerifyCallbackToken("k1", "other", token) {
		t.Fatal("expected token for another provider to fail")
	}
	if VerifyCallbackToken("k2", "mpesa", token) {
		t.Fatal("expected token with another key to fail")
	}
	if VerifyCallbackToken("k1", "mpesa", "") {
		t.Fatal("expected empty token to fail")
	}
}

func TestCallbackURL(t *testing.T) {
	url := CallbackURL("https://gateway.example.com/", "mpesa", "abc123")
	if url != "https://gateway.example.com/webhooks/mpesa/abc123" {
		t.Fatalf("unexpected callback URL: %s", url)
	}
	if CallbackURL("", "mpesa", "abc") != "" {
		t.Fatal("expected empty callback URL when base URL is empty")
	}
}
