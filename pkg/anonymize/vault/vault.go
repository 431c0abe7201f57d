// Package vault holds the reversible token mappings. The reverse map is
// itself sensitive: plaintexts are sealed with an AEAD before they reach any
// backend, reads require a signed access grant, and every read is reported to
// an audit sink. The store is append-only for new tokens and read-only
// thereafter.
package vault

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExists   = errors.New("token already mapped")
	ErrGrantInvalid  = errors.New("access grant invalid")
	ErrGrantWrongUse = errors.New("access grant scope mismatch")
	ErrSealedCorrupt = errors.New("sealed mapping corrupt")
	ErrBackendClosed = errors.New("vault backend closed")
)

// grantScope is the only scope reverse-map grants carry.
const grantScope = "reverse-map:read"

// Backend persists sealed mappings. Implementations: memory, sqlite.
type Backend interface {
	Put(ctx context.Context, token string, sealed []byte) error
	Get(ctx context.Context, token string) ([]byte, error)
	Close() error
}

// AuditSink receives a record of every vault access. Wired to the audit
// chain by the pipeline; tests may use a no-op.
type AuditSink func(ctx context.Context, action, actor, token string)

// Store is the mediated reverse-map store.
type Store struct {
	backend Backend
	key     []byte
	audit   AuditSink
}

// New creates a Store. key is the process-scoped vault key; any length is
// accepted and stretched to the AEAD key size.
func New(backend Backend, key []byte, audit AuditSink) *Store {
	sum := sha256.Sum256(key)
	if audit == nil {
		audit = func(context.Context, string, string, string) {}
	}
	return &Store{backend: backend, key: sum[:], audit: audit}
}

// Put seals plaintext and stores it under token. Storing the same token twice
// is rejected unless the plaintext is identical (deterministic tokens make
// duplicate puts of the same pair common and harmless).
func (s *Store) Put(ctx context.Context, token, plaintext string) error {
	existing, err := s.backend.Get(ctx, token)
	if err == nil {
		prior, openErr := s.open(existing)
		if openErr == nil && prior == plaintext {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrTokenExists, token)
	}
	if !errors.Is(err, ErrTokenNotFound) {
		return err
	}

	sealed, err := s.seal(plaintext)
	if err != nil {
		return err
	}
	return s.backend.Put(ctx, token, sealed)
}

// Reveal opens the mapping for token. The grant is verified first and the
// access is audited whether or not the token exists.
func (s *Store) Reveal(ctx context.Context, token, grantToken string) (string, error) {
	actor, err := s.verifyGrant(grantToken)
	if err != nil {
		s.audit(ctx, "vault.reveal.denied", actor, token)
		return "", err
	}
	s.audit(ctx, "vault.reveal", actor, token)

	sealed, err := s.backend.Get(ctx, token)
	if err != nil {
		return "", err
	}
	return s.open(sealed)
}

// NewGrant issues a signed, expiring access grant for a reader.
func (s *Store) NewGrant(reader string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   reader,
		Audience:  jwt.ClaimStrings{grantScope},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("grant signing: %w", err)
	}
	return signed, nil
}

func (s *Store) verifyGrant(grantToken string) (string, error) {
	parsed, err := jwt.ParseWithClaims(grantToken, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrGrantInvalid, err)
	}
	claims := parsed.Claims.(*jwt.RegisteredClaims)
	for _, aud := range claims.Audience {
		if aud == grantScope {
			return claims.Subject, nil
		}
	}
	return claims.Subject, ErrGrantWrongUse
}

func (s *Store) seal(plaintext string) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(out, sealed)
	return out, nil
}

func (s *Store) open(encoded []byte) (string, error) {
	sealed := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(sealed, encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealedCorrupt, err)
	}
	sealed = sealed[:n]

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	if len(sealed) < aead.NonceSize() {
		return "", ErrSealedCorrupt
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealedCorrupt, err)
	}
	return string(plaintext), nil
}
