package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignedURLSigner creates and validates signed download tokens for stored files.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate returns a token granting access to relPath until the returned expiry.
func (s *SignedURLSigner) Generate(relPath string) (string, time.Time, error) {
	if relPath == "" {
		return "", time.Time{}, fmt.Errorf("relPath required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	return strings.Join([]string{ts, encodedPath, s.sign(ts, encodedPath)}, "."), expiresAt, nil
}

// Parse validates a token and returns the referenced path.
func (s *SignedURLSigner) Parse(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid token format")
	}
	ts, encodedPath, signature := parts[0], parts[1], parts[2]

	if !hmac.Equal([]byte(s.sign(ts, encodedPath)), []byte(signature)) {
		return "", fmt.Errorf("invalid token signature")
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid timestamp")
	}
	if s.now().After(time.Unix(expUnix, 0)) {
		return "", fmt.Errorf("token expired")
	}
	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return "", fmt.Errorf("decode path: %w", err)
	}
	return string(rawPath), nil
}

func (s *SignedURLSigner) sign(ts, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(ts + "|" + encodedPath))
	return hex.EncodeToString(mac.Sum(nil))
}
