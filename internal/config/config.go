package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr string
	LogLevel string

	// DB
	Env    string // "dev" | "prod"
	DBPath string // e.g. "./data/cipherpoll.db"

	// Identity of this ledger instance, bound into every state commitment so
	// a commitment from one deployment can never be replayed against another.
	// Empty means "derive from DBPath".
	LedgerID string

	// The single administrator principal, fixed for the process lifetime.
	Administrator string

	// Providers seeded in dev environments.
	SeedProviders []string

	CooldownSeconds int

	// Local simulator oracle ("sim") or none ("external"); with "external"
	// the callback endpoint is the only way results arrive.
	OracleMode string

	// Secret for the masked plain scheme backend. Dev default only; prod
	// deployments must set it.
	SchemeSecret string

	// Base64 ed25519 public key for verifying external-oracle callbacks.
	// Ignored in sim mode, where a fresh keypair is generated at startup.
	OraclePublicKey string

	// Audit event retention
	EventRetentionDays int // 0 = keep forever
	PruneIntervalHours int // how often the pruner runs (default 6)
}

func FromEnv() Config {
	addr := getenvDefault("CIPHERPOLL_HTTP_ADDR", ":8080")
	logLevel := getenvDefault("CIPHERPOLL_LOG_LEVEL", "info")

	env := strings.ToLower(getenvDefault("CIPHERPOLL_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	dbPath := getenvDefault("CIPHERPOLL_DB_PATH", "./data/cipherpoll.db")

	oracleMode := strings.ToLower(getenvDefault("CIPHERPOLL_ORACLE_MODE", "sim"))
	if oracleMode != "sim" && oracleMode != "external" {
		oracleMode = "sim"
	}

	return Config{
		HTTPAddr: addr,
		LogLevel: logLevel,
		Env:      env,
		DBPath:   dbPath,

		LedgerID:      strings.TrimSpace(os.Getenv("CIPHERPOLL_LEDGER_ID")),
		Administrator: getenvDefault("CIPHERPOLL_ADMIN", "admin"),
		SeedProviders: splitCSV(os.Getenv("CIPHERPOLL_PROVIDERS")),

		CooldownSeconds: getenvInt("CIPHERPOLL_COOLDOWN_SECONDS", 30),

		OracleMode:      oracleMode,
		SchemeSecret:    getenvDefault("CIPHERPOLL_SCHEME_SECRET", "dev-scheme-secret"),
		OraclePublicKey: strings.TrimSpace(os.Getenv("CIPHERPOLL_ORACLE_PUBKEY")),

		EventRetentionDays: getenvInt("CIPHERPOLL_EVENT_RETENTION_DAYS", 90),
		PruneIntervalHours: getenvInt("CIPHERPOLL_PRUNE_INTERVAL_HOURS", 6),
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
