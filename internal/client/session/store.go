package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spec-kit/folio/internal/domain"
)

// Storage slot names; both must be present for a tier to hold a session.
const (
	TokenKey = "folio_token"
	UserKey  = "folio_user"
)

// Tier selects where a session is written.
type Tier int

const (
	// TierEphemeral is cleared when the process ends.
	TierEphemeral Tier = iota
	// TierPersistent survives restarts; chosen by "remember me".
	TierPersistent
)

func (t Tier) String() string {
	if t == TierPersistent {
		return "persistent"
	}
	return "ephemeral"
}

// TierFor maps the remember-me flag onto a tier.
func TierFor(rememberMe bool) Tier {
	if rememberMe {
		return TierPersistent
	}
	return TierEphemeral
}

// Session is a restored (token, user) pair.
type Session struct {
	Token string
	User  domain.PublicUser
	Tier  Tier
}

// Store keeps at most one tier holding a live session.
type Store struct {
	persistent Storage
	ephemeral  Storage
}

// NewStore combines the two tiers.
func NewStore(persistent, ephemeral Storage) *Store {
	return &Store{persistent: persistent, ephemeral: ephemeral}
}

func (s *Store) tier(t Tier) Storage {
	if t == TierPersistent {
		return s.persistent
	}
	return s.ephemeral
}

// Save writes the session into tier after clearing the other one.
func (s *Store) Save(ctx context.Context, tier Tier, token string, user domain.PublicUser) error {
	other := TierPersistent
	if tier == TierPersistent {
		other = TierEphemeral
	}
	if err := clearTier(ctx, s.tier(other)); err != nil {
		return fmt.Errorf("clear %s tier: %w", other, err)
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	target := s.tier(tier)
	if err := target.Set(ctx, TokenKey, token); err != nil {
		return err
	}
	if err := target.Set(ctx, UserKey, string(raw)); err != nil {
		_ = target.Remove(ctx, TokenKey)
		return err
	}
	return nil
}

// Restore returns the stored session, checking the persistent tier first.
// It returns nil when neither tier holds both slots.
func (s *Store) Restore(ctx context.Context) (*Session, error) {
	var errs []error
	for _, tier := range []Tier{TierPersistent, TierEphemeral} {
		sess, err := readTier(ctx, s.tier(tier))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s tier: %w", tier, err))
			continue
		}
		if sess != nil {
			sess.Tier = tier
			return sess, nil
		}
	}
	return nil, errors.Join(errs...)
}

// Clear wipes both tiers; it attempts both even if one fails.
func (s *Store) Clear(ctx context.Context) error {
	return errors.Join(
		clearTier(ctx, s.persistent),
		clearTier(ctx, s.ephemeral),
	)
}

func readTier(ctx context.Context, st Storage) (*Session, error) {
	token, okToken, err := st.Get(ctx, TokenKey)
	if err != nil {
		return nil, err
	}
	rawUser, okUser, err := st.Get(ctx, UserKey)
	if err != nil {
		return nil, err
	}
	if !okToken || !okUser || token == "" {
		return nil, nil
	}
	var user domain.PublicUser
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return nil, nil
	}
	return &Session{Token: token, User: user}, nil
}

func clearTier(ctx context.Context, st Storage) error {
	return errors.Join(st.Remove(ctx, TokenKey), st.Remove(ctx, UserKey))
}
