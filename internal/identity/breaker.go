package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type BreakerConfig struct {
	Timeout          time.Duration // hard timeout per call
	FailureThreshold int           // consecutive failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open
}

// CallObserver sees every call that went through the breaker, including fast failures.
type CallObserver interface {
	ObserveIdentityCall(op string, elapsed time.Duration, err error)
	SetIdentityCircuitState(state string)
}

// Breaker guards a Directory with a per-call timeout and a circuit breaker.
// Only ErrUnreachable trips the circuit; refusals and 4xx answers prove the provider is up.
type Breaker struct {
	inner    Directory
	cfg      BreakerConfig
	observer CallObserver
	mu       sync.Mutex

	state string // "closed" | "open" | "half_open"

	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
	now                 func() time.Time
}

func NewBreaker(inner Directory, cfg BreakerConfig, observer CallObserver) *Breaker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &Breaker{
		inner:    inner,
		cfg:      cfg,
		observer: observer,
		state:    "closed",
		now:      time.Now,
	}
}

func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := b.now()

	if !b.allowRequest() {
		err := fmt.Errorf("identity %s: %w: %w", op, ErrUnreachable, ErrCircuitOpen)
		b.observe(op, start, err)
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	err := fn(callCtx)

	// the caller gave up; says nothing about the provider's health
	if err != nil && ctx.Err() != nil {
		b.release()
		err = fmt.Errorf("identity %s: %w", op, ctx.Err())
		b.observe(op, start, err)
		return err
	}

	// our own deadline firing is the provider being slow
	if err != nil && !errors.Is(err, ErrUnreachable) && callCtx.Err() != nil {
		err = fmt.Errorf("identity %s: timed out after %s: %w: %w", op, b.cfg.Timeout, ErrUnreachable, err)
	}

	b.afterRequest(err)
	b.observe(op, start, err)

	return err
}

func (b *Breaker) observe(op string, start time.Time, err error) {
	if b.observer == nil {
		return
	}
	b.observer.ObserveIdentityCall(op, b.now().Sub(start), err)
	b.observer.SetIdentityCircuitState(b.State())
}

func (b *Breaker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case "closed":
		return true
	case "open":
		if b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
			b.state = "half_open"
			b.halfOpenInFlight = 1
			return true
		}
		return false
	case "half_open":
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenInFlight++
		return true
	default:
		return true
	}
}

// release gives back a half-open trial slot without judging the outcome.
func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == "half_open" && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}
}

func (b *Breaker) afterRequest(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == "half_open" && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}

	if !errors.Is(err, ErrUnreachable) {
		b.consecutiveFailures = 0
		b.state = "closed"
		return
	}

	b.consecutiveFailures++

	if b.state == "half_open" {
		b.state = "open"
		b.openedAt = b.now()
		return
	}

	if b.consecutiveFailures >= b.cfg.FailureThreshold {
		b.state = "open"
		b.openedAt = b.now()
	}
}

func (b *Breaker) CreateAccount(ctx context.Context, p Profile, password string) (id string, err error) {
	err = b.call(ctx, "create_account", func(ctx context.Context) error {
		id, err = b.inner.CreateAccount(ctx, p, password)
		return err
	})
	return id, err
}

func (b *Breaker) UpdateAccount(ctx context.Context, externalID string, p Profile) error {
	return b.call(ctx, "update_account", func(ctx context.Context) error {
		return b.inner.UpdateAccount(ctx, externalID, p)
	})
}

func (b *Breaker) DeleteAccount(ctx context.Context, externalID string) error {
	return b.call(ctx, "delete_account", func(ctx context.Context) error {
		return b.inner.DeleteAccount(ctx, externalID)
	})
}

func (b *Breaker) AssignRole(ctx context.Context, externalID, role string) error {
	return b.call(ctx, "assign_role", func(ctx context.Context) error {
		return b.inner.AssignRole(ctx, externalID, role)
	})
}

func (b *Breaker) RemoveRole(ctx context.Context, externalID, role string) error {
	return b.call(ctx, "remove_role", func(ctx context.Context) error {
		return b.inner.RemoveRole(ctx, externalID, role)
	})
}

func (b *Breaker) FindByEmail(ctx context.Context, email string) (acc Account, found bool, err error) {
	err = b.call(ctx, "find_by_email", func(ctx context.Context) error {
		acc, found, err = b.inner.FindByEmail(ctx, email)
		return err
	})
	return acc, found, err
}

func (b *Breaker) GetAccount(ctx context.Context, externalID string) (acc Account, err error) {
	err = b.call(ctx, "get_account", func(ctx context.Context) error {
		acc, err = b.inner.GetAccount(ctx, externalID)
		return err
	})
	return acc, err
}

func (b *Breaker) ListEffectiveRoles(ctx context.Context, externalID string) (roles []string, err error) {
	err = b.call(ctx, "list_roles", func(ctx context.Context) error {
		roles, err = b.inner.ListEffectiveRoles(ctx, externalID)
		return err
	})
	return roles, err
}

func (b *Breaker) EnsureRole(ctx context.Context, name, description string) (created bool, err error) {
	err = b.call(ctx, "ensure_role", func(ctx context.Context) error {
		created, err = b.inner.EnsureRole(ctx, name, description)
		return err
	})
	return created, err
}

func (b *Breaker) Ping(ctx context.Context) error {
	return b.call(ctx, "ping", b.inner.Ping)
}
