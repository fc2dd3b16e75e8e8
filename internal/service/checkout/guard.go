package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/models"
)

type Reason string

const (
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonUnverified      Reason = "unverified"
)

const UnverifiedNotice = "Please verify your email address before placing an order. Check your inbox for the verification link."

type Decision struct {
	Allowed bool
	Reason  Reason

	// User facing message, set for recoverable denials
	Notice string
}

// Err is the typed error matching the decision, nil if allowed
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == ReasonUnverified:
		return apperrors.ErrUnverified
	default:
		return apperrors.ErrUnauthenticated
	}
}

type Session interface {
	EnsureValid(ctx context.Context) (models.Credentials, error)
	Profile(ctx context.Context) (models.Profile, error)
	RefreshProfile(ctx context.Context) (models.Profile, error)
}

// Guard decides whether the session may enter checkout
type Guard struct {
	session Session
}

func NewGuard(s Session) *Guard {
	return &Guard{session: s}
}

// Authorize returns error only when the decision can't be made (commerce API unreachable)
func (g *Guard) Authorize(ctx context.Context, requireEmailVerification bool) (Decision, error) {
	if _, err := g.session.EnsureValid(ctx); err != nil {
		return deny(ReasonUnauthenticated), nil
	}

	if !requireEmailVerification {
		return Decision{Allowed: true}, nil
	}

	profile, err := g.session.Profile(ctx)
	if err == nil && !profile.IsEmailVerified {
		// Cached profile may predate the verification
		profile, err = g.session.RefreshProfile(ctx)
	}
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUnauthenticated):
		return deny(ReasonUnauthenticated), nil
	default:
		return Decision{}, fmt.Errorf("failed to load profile: %w", err)
	}

	if !profile.IsEmailVerified {
		d := deny(ReasonUnverified)
		d.Notice = UnverifiedNotice
		return d, nil
	}

	return Decision{Allowed: true}, nil
}

func deny(r Reason) Decision {
	return Decision{Allowed: false, Reason: r}
}
