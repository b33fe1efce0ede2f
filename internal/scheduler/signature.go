package scheduler

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SignatureHeader carries the callback signature, in the format QStash uses.
const SignatureHeader = "Upstash-Signature"

// MessageIDHeader carries the scheduler's message id on callbacks.
const MessageIDHeader = "Upstash-Message-Id"

const signatureIssuer = "Upstash"

var (
	ErrMissingSignature = errors.New("missing callback signature")
	ErrInvalidSignature = errors.New("invalid callback signature")
)

// CallbackClaims binds a signature to the destination URL and a hash of the body.
type CallbackClaims struct {
	Body string `json:"body"`
	jwt.RegisteredClaims
}

func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.URLEncoding.EncodeToString(sum[:])
}

// Signer produces callback signatures. The AMQP relay signs what it forwards with it.
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewSigner(key string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Signer{key: []byte(key), ttl: ttl, now: time.Now}
}

func (s *Signer) Sign(url string, body []byte) (string, error) {
	now := s.now()
	claims := CallbackClaims{
		Body: bodyHash(body),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    signatureIssuer,
			Subject:   url,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign callback: %w", err)
	}
	return signed, nil
}

// Verifier checks callback signatures against the current signing key and, during
// key rotation, the next one.
type Verifier struct {
	keys   [][]byte
	url    string
	leeway time.Duration
}

// NewVerifier builds a verifier. expectedURL may be empty to skip the subject check.
func NewVerifier(currentKey, nextKey, expectedURL string) *Verifier {
	v := &Verifier{url: expectedURL, leeway: 5 * time.Second}
	for _, k := range []string{currentKey, nextKey} {
		if k != "" {
			v.keys = append(v.keys, []byte(k))
		}
	}
	return v
}

// Verify returns the verified claims or ErrMissingSignature / ErrInvalidSignature.
func (v *Verifier) Verify(signature string, body []byte) (*CallbackClaims, error) {
	if signature == "" {
		return nil, ErrMissingSignature
	}
	if len(v.keys) == 0 {
		return nil, fmt.Errorf("%w: no signing key configured", ErrInvalidSignature)
	}

	var lastErr error
	for _, key := range v.keys {
		claims, err := v.verifyWithKey(signature, body, key)
		if err == nil {
			return claims, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, lastErr)
}

func (v *Verifier) verifyWithKey(signature string, body, key []byte) (*CallbackClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(signatureIssuer),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.url != "" {
		opts = append(opts, jwt.WithSubject(v.url))
	}

	claims := new(CallbackClaims)
	token, err := jwt.NewParser(opts...).ParseWithClaims(signature, claims, func(t *jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token not valid")
	}

	if strings.TrimRight(claims.Body, "=") != strings.TrimRight(bodyHash(body), "=") {
		return nil, errors.New("body hash mismatch")
	}
	return claims, nil
}
