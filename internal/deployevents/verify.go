package deployevents

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

var ErrSignatureMismatch = errors.New("deployevents: webhook signature mismatch")

// VerifyHMACSHA256 checks a GitHub-style "sha256=<hex>" signature
// header against body using the shared webhook secret, in constant
// time so a timing side channel can't be used to forge deliveries.
func VerifyHMACSHA256(secret []byte, header string, body []byte) error {
	const prefix = "sha256="
	sig := strings.TrimPrefix(header, prefix)
	if sig == header {
		return ErrSignatureMismatch
	}

	expected, err := hex.DecodeString(sig)
	if err != nil {
		return ErrSignatureMismatch
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	computed := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expected, computed) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}
