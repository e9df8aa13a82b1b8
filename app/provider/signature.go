package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const SignatureHeader = "X-Signature"

func sign(key string, message []byte) []byte {
	mac := hmac.New(sha256.New, []byte(key))
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}

// SignPayload returns hex(HMAC-SHA256(key, payload)).
func SignPayload(key string, payload []byte) string {
	return hex.EncodeToString(sign(key, payload))
}

// VerifyPayloadSignature checks a body signature header, accepting an optional "sha256=" prefix.
func VerifyPayloadSignature(key string, payload []byte, signatureHeader string) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(key) == "" {
		return false
	}
	signatureHeader = strings.TrimPrefix(signatureHeader, "sha256=")

	candidate, err := hex.DecodeString(signatureHeader)
	if err != nil {
		return false
	}
	return hmac.Equal(candidate, sign(key, payload))
}

// CallbackToken derives the secret callback path segment for providers that cannot sign their requests.
func CallbackToken(key, providerCode string) string {
	return hex.EncodeToString(sign(key, []byte(providerCode)))
}

func VerifyCallbackToken(key, providerCode, token string) bool {
	token = strings.TrimSpace(token)
	if token == "" || strings.TrimSpace(key) == "" {
		return false
	}
	candidate, err := hex.DecodeString(token)
	if err != nil {
		return false
	}
	return hmac.Equal(candidate, sign(key, []byte(providerCode)))
}

// CallbackURL builds the inbound webhook URL handed to the provider on push initiation.
func CallbackURL(baseURL, providerCode, token string) string {
	baseURL = strings.TrimSpace(strings.TrimRight(baseURL, "/"))
	providerCode = strings.TrimSpace(providerCode)
	if baseURL == "" || providerCode == "" {
		return ""
	}
	url := baseURL + "/webhooks/" + providerCode
	if token = strings.TrimSpace(token); token != "" {
		url += "/" + token
	}
	return url
}
