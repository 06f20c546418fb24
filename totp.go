package vapor

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// guardCodeAlphabet is the platform's code alphabet: digits and consonants
// chosen to avoid look-alike characters.
const guardCodeAlphabet = "23456789BCDFGHJKMNPQRTVWXY"

const guardCodePeriod = 30 * time.Second

var errBadSharedSecret = errors.New("malformed shared secret")

// GuardCode derives the authenticator code for the given shared secret at
// the given instant. The secret is the platform-issued value, base64
// encoded; a 40-character hex key is also accepted. Pure and
// time-dependent only through at.
func GuardCode(sharedSecret string, at time.Time) (string, error) {
	return guardCodeAt(sharedSecret, at, guardCodePeriod, 5)
}

func guardCodeAt(sharedSecret string, at time.Time, period time.Duration, digits int) (string, error) {
	key, err := decodeSharedSecret(sharedSecret)
	if err != nil {
		return "", err
	}
	if digits <= 0 {
		digits = 5
	}
	if period <= 0 {
		period = guardCodePeriod
	}

	counter := uint64(at.Unix() / int64(period/time.Second))
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	fullcode := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	code := make([]byte, digits)
	for i := 0; i < digits; i++ {
		code[i] = guardCodeAlphabet[fullcode%uint32(len(guardCodeAlphabet))]
		fullcode /= uint32(len(guardCodeAlphabet))
	}
	return string(code), nil
}

func decodeSharedSecret(sharedSecret string) ([]byte, error) {
	trimmed := strings.TrimSpace(sharedSecret)
	if trimmed == "" {
		return nil, errBadSharedSecret
	}

	// A 40-character hex key (the SHA-1 key size) is also valid base64,
	// so hex must be checked first or it decodes to the wrong material.
	if isHexKey(trimmed) {
		if key, err := hex.DecodeString(trimmed); err == nil {
			return key, nil
		}
	}
	if key, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
		return key, nil
	}
	return nil, errBadSharedSecret
}

func isHexKey(s string) bool {
	if len(s) != 40 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
