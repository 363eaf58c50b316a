// Package tokenregistry issues, scopes, and verifies bearer tokens. It is
// generalized from the teacher's pkg/manager/token.go TokenManager: same
// random-value-with-collision-retry idiom, but persisted through
// Repository instead of an in-memory map, since tokens must survive a
// process restart and be visible from every endpoint.
package tokenregistry

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/cuemby/landctl/pkg/apierr"
	"github.com/cuemby/landctl/pkg/log"
	"github.com/cuemby/landctl/pkg/repository"
	"github.com/cuemby/landctl/pkg/types"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
const tokenLength = 40

const (
	ttlSession = 24 * time.Hour
	ttlCmdline = 365 * 24 * time.Hour
	ttlWorker  = 365 * 24 * time.Hour
)

const touchInterval = 60 * time.Second

// Registry issues and verifies bearer tokens.
type Registry struct {
	repo repository.Repository

	mu    sync.Mutex
	isNew map[int64]struct{}
}

// New constructs a Registry over repo.
func New(repo repository.Repository) *Registry {
	return &Registry{
		repo:  repo,
		isNew: make(map[int64]struct{}),
	}
}

func ttlForUsage(usage types.TokenUsage) time.Duration {
	switch usage {
	case types.TokenUsageSession:
		return ttlSession
	case types.TokenUsageCmdline:
		return ttlCmdline
	case types.TokenUsageWorker:
		return ttlWorker
	default:
		return ttlSession
	}
}

func generateValue() (string, error) {
	buf := make([]byte, tokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, tokenLength)
	for i, b := range buf {
		out[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(out), nil
}

// Issue creates a new token for owner/name/usage. It fails with Conflict if
// an Active token already exists for that (owner, name, usage) triple.
func (r *Registry) Issue(ctx context.Context, ownerID int64, name string, usage types.TokenUsage) (*types.Token, error) {
	if existing, err := r.repo.GetActiveTokenByOwnerNameUsage(ctx, ownerID, name, usage); err == nil && existing != nil {
		return nil, apierr.Conflict("token name already exists")
	}

	now := time.Now()
	tok := &types.Token{
		UserID:    ownerID,
		Name:      name,
		Usage:     usage,
		Status:    types.TokenStatusActive,
		ExpiresAt: now.Add(ttlForUsage(usage)),
	}

	// Retry on collision: a 40-char random value from 62 symbols has
	// negligible collision odds, but the teacher's TokenManager always
	// regenerates on a unique-index violation rather than trusting the
	// odds, so we do too.
	for attempt := 0; attempt < 5; attempt++ {
		value, err := generateValue()
		if err != nil {
			return nil, apierr.Upstream("generate token value", err)
		}
		tok.Value = value
		err = r.repo.CreateToken(ctx, tok)
		if err == nil {
			r.mu.Lock()
			r.isNew[tok.ID] = struct{}{}
			r.mu.Unlock()
			return tok, nil
		}
		if apierr.KindOf(err) == apierr.KindConflict {
			continue
		}
		return nil, err
	}
	return nil, apierr.Upstream("generate unique token value", nil)
}

// Verify returns the token and its owning user iff value matches an Active
// token of the required usage whose owner is also Active and unexpired.
func (r *Registry) Verify(ctx context.Context, value string, required types.TokenUsage) (*types.Token, *types.User, error) {
	tok, err := r.repo.GetTokenByValue(ctx, value)
	if err != nil {
		return nil, nil, apierr.Unauthorized("invalid token")
	}
	now := time.Now()
	if tok.Usage != required || tok.Status != types.TokenStatusActive || !now.Before(tok.ExpiresAt) {
		return nil, nil, apierr.Unauthorized("invalid token")
	}
	user, err := r.repo.GetUserByID(ctx, tok.UserID)
	if err != nil || user.Status != types.UserStatusActive {
		return nil, nil, apierr.Unauthorized("invalid token")
	}

	if now.Sub(tok.LatestUsedAt) > touchInterval {
		// Best-effort, non-blocking per spec: a failure here must never
		// fail the request that's using the token.
		go func() {
			if err := r.repo.TouchTokenUsage(context.Background(), tok.ID, now.Unix()); err != nil {
				log.WithComponent("tokenregistry").Debug().Err(err).Msg("touch token usage failed")
			}
		}()
	}

	return tok, user, nil
}

// Expire soft-deletes a token by marking it Expired.
func (r *Registry) Expire(ctx context.Context, id int64) error {
	return r.repo.ExpireToken(ctx, id)
}

// IsNew reports whether id has never been displayed to its owner. This is a
// UX affordance, not a security invariant; it does not survive restarts.
func (r *Registry) IsNew(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.isNew[id]
	return ok
}

// UnsetNew clears the "new" marker once the admin UI has shown the value.
func (r *Registry) UnsetNew(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.isNew, id)
}
