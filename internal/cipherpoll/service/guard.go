package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cipherpoll/server/internal/cipherpoll/store"
)

// Cooldown action kinds. Only provider operations are rate limited.
const (
	ActionSubmit            = "submit"
	ActionRequestDecryption = "request_decryption"
)

// AccessGuard enforces roles, the global pause flag, and per-principal
// per-action cooldowns. Every externally reachable operation passes through
// it before touching ledger state.
//
// The cooldown timestamp is deliberately NOT written when the guard check
// passes: the enclosing operation hands a TouchRecord to its store call so
// the timestamp commits atomically with the operation's success. An
// operation that fails after the guard never burns the caller's cooldown.
type AccessGuard struct {
	admin  string
	ledger store.LedgerStore
	events store.EventStore
	logger *slog.Logger
	clock  func() time.Time
}

type GuardOption func(*AccessGuard)

// WithClock overrides the time source. Test hook.
func WithClock(clock func() time.Time) GuardOption {
	return func(g *AccessGuard) { g.clock = clock }
}

func NewAccessGuard(admin string, ledger store.LedgerStore, events store.EventStore, logger *slog.Logger, opts ...GuardOption) *AccessGuard {
	g := &AccessGuard{
		admin:  strings.TrimSpace(admin),
		ledger: ledger,
		events: events,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *AccessGuard) now() time.Time { return g.clock() }

// RequireAdmin fails with ErrAccessDenied for any caller other than the
// administrator, regardless of pause state.
func (g *AccessGuard) RequireAdmin(principal string) error {
	if strings.TrimSpace(principal) == "" || principal != g.admin {
		return ErrAccessDenied
	}
	return nil
}

func (g *AccessGuard) RequireProvider(ctx context.Context, principal string) error {
	if strings.TrimSpace(principal) == "" {
		return ErrAccessDenied
	}
	ok, err := g.ledger.IsProvider(ctx, principal)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccessDenied
	}
	return nil
}

func (g *AccessGuard) RequireNotPaused(ctx context.Context) error {
	cfg, err := g.ledger.Config(ctx)
	if err != nil {
		return err
	}
	if cfg.Paused {
		return ErrPaused
	}
	return nil
}

// CooldownElapsed checks the caller's cooldown for an action kind and
// returns the instant it evaluated at, so the enclosing operation can reuse
// it for its atomic touch.
func (g *AccessGuard) CooldownElapsed(ctx context.Context, principal, action string) (time.Time, error) {
	now := g.now()

	cfg, err := g.ledger.Config(ctx)
	if err != nil {
		return now, err
	}
	if cfg.Cooldown <= 0 {
		return now, nil
	}

	last, err := g.ledger.LastAction(ctx, principal, action)
	if err != nil {
		return now, err
	}
	if !last.IsZero() && now.Sub(last) < cfg.Cooldown {
		return now, fmt.Errorf("%w: %s available in %s", ErrCooldownActive, action, cfg.Cooldown-now.Sub(last))
	}
	return now, nil
}

// ── Administrator operations ─────────────────────────────────────────────────

func (g *AccessGuard) AddProvider(ctx context.Context, caller, target string) error {
	if err := g.RequireAdmin(caller); err != nil {
		return err
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("%w: empty principal", ErrInvalidInput)
	}

	if err := g.ledger.AddProvider(ctx, target, g.now()); err != nil {
		if errors.Is(err, store.ErrNoChange) {
			return fmt.Errorf("%w: already a provider", ErrInvalidInput)
		}
		return err
	}

	emit(ctx, g.events, g.logger, store.EventRecord{
		Kind:      EventProviderAdded,
		Principal: target,
	})
	return nil
}

func (g *AccessGuard) RemoveProvider(ctx context.Context, caller, target string) error {
	if err := g.RequireAdmin(caller); err != nil {
		return err
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("%w: empty principal", ErrInvalidInput)
	}

	if err := g.ledger.RemoveProvider(ctx, target); err != nil {
		if errors.Is(err, store.ErrNoChange) {
			return fmt.Errorf("%w: not a provider", ErrInvalidInput)
		}
		return err
	}

	emit(ctx, g.events, g.logger, store.EventRecord{
		Kind:      EventProviderRemoved,
		Principal: target,
	})
	return nil
}

// SetPaused rejects a write of the current value: idempotent calls are an
// operator mistake worth surfacing, not a silent success.
func (g *AccessGuard) SetPaused(ctx context.Context, caller string, paused bool) error {
	if err := g.RequireAdmin(caller); err != nil {
		return err
	}

	if err := g.ledger.SetPaused(ctx, paused, g.now()); err != nil {
		if errors.Is(err, store.ErrNoChange) {
			return fmt.Errorf("%w: pause state unchanged", ErrInvalidInput)
		}
		return err
	}

	emit(ctx, g.events, g.logger, store.EventRecord{
		Kind:    EventPausedSet,
		Payload: fmt.Sprintf(`{"paused":%t}`, paused),
	})
	return nil
}

func (g *AccessGuard) SetCooldown(ctx context.Context, caller string, cooldown time.Duration) error {
	if err := g.RequireAdmin(caller); err != nil {
		return err
	}
	if cooldown < 0 {
		return fmt.Errorf("%w: negative cooldown", ErrInvalidInput)
	}

	if err := g.ledger.SetCooldown(ctx, cooldown, g.now()); err != nil {
		if errors.Is(err, store.ErrNoChange) {
			return fmt.Errorf("%w: cooldown unchanged", ErrInvalidInput)
		}
		return err
	}

	emit(ctx, g.events, g.logger, store.EventRecord{
		Kind:    EventCooldownSet,
		Payload: fmt.Sprintf(`{"cooldown_s":%d}`, int64(cooldown/time.Second)),
	})
	return nil
}
