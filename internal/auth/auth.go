// Package auth resolves bearer tokens to identities. Token issuance belongs
// to an external identity provider; this package only needs a stable user
// id back or ErrUnauthorized.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"inboxsync/internal/config"
	"inboxsync/internal/domain"
	"inboxsync/internal/kv"
)

var ErrUnauthorized = errors.New("unauthorized")

type Resolver interface {
	Resolve(ctx context.Context, token string) (domain.Identity, error)
}

// BearerToken extracts the token from an Authorization header value. The
// header is split on whitespace and the second field is the token.
func BearerToken(header string) string {
	fields := strings.Fields(header)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

// StaticResolver serves tokens provisioned in configuration.
type StaticResolver struct {
	tokens map[string]domain.Identity
}

func NewStaticResolver(tokens map[string]config.UserConfig) *StaticResolver {
	r := &StaticResolver{tokens: make(map[string]domain.Identity, len(tokens))}
	for token, u := range tokens {
		r.tokens[token] = domain.Identity{UserID: u.UserID, DisplayName: u.Name, Avatar: u.Avatar}
	}
	return r
}

func (r *StaticResolver) Resolve(_ context.Context, token string) (domain.Identity, error) {
	id, ok := r.tokens[token]
	if !ok || id.UserID == "" {
		return domain.Identity{}, ErrUnauthorized
	}
	return id, nil
}

// SessionStore keeps sessions in the kv store under session:<token>.
type SessionStore struct {
	store kv.Store
}

func NewSessionStore(store kv.Store) *SessionStore {
	return &SessionStore{store: store}
}

func sessionKey(token string) string { return "session:" + token }

func (s *SessionStore) Issue(ctx context.Context, token string, id domain.Identity) error {
	if token == "" || id.UserID == "" {
		return fmt.Errorf("issue session: token and user id required")
	}
	return kv.SetJSON(ctx, s.store, sessionKey(token), id)
}

func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	return s.store.Delete(ctx, sessionKey(token))
}

func (s *SessionStore) Resolve(ctx context.Context, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, ErrUnauthorized
	}

	var id domain.Identity
	err := kv.GetJSON(ctx, s.store, sessionKey(token), &id)
	if errors.Is(err, kv.ErrNotFound) {
		return domain.Identity{}, ErrUnauthorized
	}
	if err != nil {
		return domain.Identity{}, err
	}
	if id.UserID == "" {
		return domain.Identity{}, ErrUnauthorized
	}
	return id, nil
}

// Chain tries each resolver in turn and returns the first identity found.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, token string) (domain.Identity, error) {
	for _, r := range c {
		id, err := r.Resolve(ctx, token)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrUnauthorized) {
			return domain.Identity{}, err
		}
	}
	return domain.Identity{}, ErrUnauthorized
}
