// ABOUTME: Stored API token issuance and verification for the command channel
// ABOUTME: Tokens are nexus_<id>_<secret>; only the bcrypt hash is persisted

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/nexus-gateway/internal/store"
)

const apiTokenPrefix = "nexus_"

// ErrMalformedAPIToken is returned for tokens that do not match the
// nexus_<id>_<secret> shape.
var ErrMalformedAPIToken = errors.New("malformed api token")

// APITokenService issues and verifies stored API tokens. The CLI keeps the
// full token locally; the gateway only ever stores the bcrypt hash.
type APITokenService struct {
	store store.Store
}

// NewAPITokenService creates a token service over the given store.
func NewAPITokenService(s store.Store) *APITokenService {
	return &APITokenService{store: s}
}

// Issue creates a stored token for the user and returns the full secret
// exactly once. The caller is responsible for showing it to the user.
func (s *APITokenService) Issue(ctx context.Context, name, userID string, tenantID *string) (string, *store.APIToken, error) {
	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, fmt.Errorf("generating token secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hashing token secret: %w", err)
	}

	tok := &store.APIToken{
		ID:         uuid.New().String(),
		Name:       name,
		UserID:     userID,
		TenantID:   tenantID,
		SecretHash: hash,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateAPIToken(ctx, tok); err != nil {
		return "", nil, fmt.Errorf("storing token: %w", err)
	}

	return apiTokenPrefix + tok.ID + "_" + secret, tok, nil
}

// Verify checks a presented token against its stored hash and returns the
// owning token record. The last-used timestamp is refreshed on success.
func (s *APITokenService) Verify(ctx context.Context, presented string) (*store.APIToken, error) {
	id, secret, err := splitAPIToken(presented)
	if err != nil {
		return nil, err
	}

	tok, err := s.store.GetAPIToken(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("looking up token: %w", err)
	}

	if bcrypt.CompareHashAndPassword(tok.SecretHash, []byte(secret)) != nil {
		return nil, ErrInvalidToken
	}

	// Best effort; a failed touch must not fail authentication
	_ = s.store.TouchAPIToken(ctx, tok.ID, time.Now().UTC())
	return tok, nil
}

// splitAPIToken parses nexus_<id>_<secret>. The ID is a UUID and may not
// contain underscores; the secret is opaque.
func splitAPIToken(presented string) (id, secret string, err error) {
	if !strings.HasPrefix(presented, apiTokenPrefix) {
		return "", "", ErrMalformedAPIToken
	}
	rest := strings.TrimPrefix(presented, apiTokenPrefix)
	idx := strings.Index(rest, "_")
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", ErrMalformedAPIToken
	}
	return rest[:idx], rest[idx+1:], nil
}
