package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SeedDevOptions struct {
	// Providers to pre-register in dev so a fresh database accepts
	// submissions immediately.
	Providers []string

	// CooldownSeconds seeds the initial cooldown configuration.
	CooldownSeconds int
}

func SeedDev(ctx context.Context, conn *sql.DB, opt SeedDevOptions) error {
	now := time.Now().UTC().UnixMilli()

	if _, err := conn.ExecContext(ctx, `
INSERT INTO ledger_config(id, paused, cooldown_s, created_at_ms, updated_at_ms)
VALUES (1, 0, ?, ?, ?)
ON CONFLICT(id) DO NOTHING;`, opt.CooldownSeconds, now, now); err != nil {
		return fmt.Errorf("seed ledger_config: %w", err)
	}

	for _, p := range opt.Providers {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, `
INSERT OR IGNORE INTO providers(principal, added_at_ms) VALUES (?, ?);`, p, now); err != nil {
			return fmt.Errorf("seed provider %s: %w", p, err)
		}
	}

	return nil
}
