package idempotency

import (
	"context"
	"errors"
	"time"

	"fieldservice-invoicing-backend/internal/models"
	"fieldservice-invoicing-backend/internal/repository"

	"github.com/google/uuid"
)

const MaxKeyLength = 255

var (
	ErrInFlight   = errors.New("request with this idempotency key is in progress")
	ErrInvalidKey = errors.New("idempotency key must be at most 255 characters")
)

type Store interface {
	Claim(ctx context.Context, scope repository.IdempotencyScope) (*models.IdempotencyRecord, bool, error)
	Find(ctx context.Context, scope repository.IdempotencyScope) (*models.IdempotencyRecord, error)
	Complete(ctx context.Context, id uuid.UUID, status int, body []byte) error
	Release(ctx context.Context, id uuid.UUID) error
	ReleaseStale(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error)
}

// Replay is a stored response to send back unchanged.
type Replay struct {
	StatusCode int
	Body       []byte
}

// Claim is held by the request that owns a key until Complete or Abandon.
type Claim struct {
	id uuid.UUID
}

// Gate gives at-most-once execution per scope. The claim is inserted before
// the request runs, so two identical concurrent requests cannot both execute.
type Gate struct {
	store      Store
	pendingTTL time.Duration
	now        func() time.Time
	// retryDelay is the first pause between attempts to store a response;
	// it doubles on every attempt.
	retryDelay time.Duration
}

const completeAttempts = 4

func NewGate(store Store, pendingTTL time.Duration) *Gate {
	if pendingTTL <= 0 {
		pendingTTL = 5 * time.Minute
	}
	return &Gate{store: store, pendingTTL: pendingTTL, now: time.Now, retryDelay: 100 * time.Millisecond}
}

// Begin either claims the scope for the caller or returns the stored response
// of the request that already completed under it.
func (g *Gate) Begin(ctx context.Context, scope repository.IdempotencyScope) (*Claim, *Replay, error) {
	if len(scope.Key) > MaxKeyLength {
		return nil, nil, ErrInvalidKey
	}

	for attempt := 0; attempt < 2; attempt++ {
		rec, claimed, err := g.store.Claim(ctx, scope)
		if err != nil {
			return nil, nil, err
		}
		if claimed {
			return &Claim{id: rec.ID}, nil, nil
		}

		existing, err := g.store.Find(ctx, scope)
		if errors.Is(err, repository.ErrNotFound) {
			// released between our insert and read; claim again
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if existing.State == models.IdempotencyCompleted {
			return nil, &Replay{StatusCode: existing.StatusCode, Body: []byte(existing.ResponseBody)}, nil
		}

		released, err := g.store.ReleaseStale(ctx, existing.ID, g.now().Add(-g.pendingTTL))
		if err != nil {
			return nil, nil, err
		}
		if !released {
			return nil, nil, ErrInFlight
		}
	}
	return nil, nil, ErrInFlight
}

// Complete stores the response of a request that has already had its side
// effects. A claim left pending would be taken over once stale and the request
// executed again, so storing is retried before giving up.
func (g *Gate) Complete(ctx context.Context, claim *Claim, status int, body []byte) error {
	var err error
	delay := g.retryDelay
	for attempt := 1; ; attempt++ {
		if err = g.store.Complete(ctx, claim.id, status, body); err == nil {
			return nil
		}
		if attempt == completeAttempts {
			return err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		}
		delay *= 2
	}
}

// Abandon frees the key after a failed request so a retry can run.
func (g *Gate) Abandon(ctx context.Context, claim *Claim) error {
	return g.store.Release(ctx, claim.id)
}
