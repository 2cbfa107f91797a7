package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "store.driver")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

func ValidStoreDrivers() []string {
	return []string{"memory", "postgres", "leveldb"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateNode()...)
	errs = append(errs, c.validateLedger()...)
	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateSession()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validatePeers()...)
	return errs
}

func (c *Config) validateNode() []ValidationError {
	var errs []ValidationError
	if strings.TrimSpace(c.Node.Name) == "" {
		errs = append(errs, ValidationError{Field: "node.name", Value: c.Node.Name, Message: "is required"})
	}
	if c.Node.KeySeed != "" {
		if b, err := hex.DecodeString(c.Node.KeySeed); err != nil || len(b) != 32 {
			errs = append(errs, ValidationError{
				Field:   "node.key_seed",
				Value:   "<redacted>",
				Message: "must be 64 hex characters",
			})
		}
	}
	if c.Node.ListenAddr == "" {
		errs = append(errs, ValidationError{Field: "node.listen_addr", Value: c.Node.ListenAddr, Message: "is required"})
	}
	if !validURL(c.Node.PublicURL) {
		errs = append(errs, ValidationError{Field: "node.public_url", Value: c.Node.PublicURL, Message: "must be an absolute http(s) URL"})
	}
	return errs
}

func (c *Config) validateLedger() []ValidationError {
	if !validURL(c.Ledger.URL) {
		return []ValidationError{{Field: "ledger.url", Value: c.Ledger.URL, Message: "must be an absolute http(s) URL"}}
	}
	return nil
}

func (c *Config) validateStore() []ValidationError {
	var errs []ValidationError
	if !slices.Contains(ValidStoreDrivers(), c.Store.Driver) {
		errs = append(errs, ValidationError{
			Field:   "store.driver",
			Value:   c.Store.Driver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStoreDrivers(), ", ")),
		})
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		errs = append(errs, ValidationError{Field: "store.dsn", Value: c.Store.DSN, Message: "is required for the postgres driver"})
	}
	if c.Store.Driver == "leveldb" && c.Store.Path == "" {
		errs = append(errs, ValidationError{Field: "store.path", Value: c.Store.Path, Message: "is required for the leveldb driver"})
	}
	if c.Store.Driver == "postgres" {
		errs = append(errs, c.Store.Pool.validate()...)
	}
	return errs
}

func (p PoolConfig) validate() []ValidationError {
	var errs []ValidationError
	if p.MaxConns < 1 {
		errs = append(errs, ValidationError{Field: "store.pool.max_conns", Value: p.MaxConns, Message: "must be at least 1"})
	}
	if p.MinConns < 0 || p.MinConns > p.MaxConns {
		errs = append(errs, ValidationError{Field: "store.pool.min_conns", Value: p.MinConns, Message: "must be between 0 and store.pool.max_conns"})
	}
	for field, d := range map[string]time.Duration{
		"store.pool.max_conn_lifetime":   p.MaxConnLifetime,
		"store.pool.max_conn_idle_time":  p.MaxConnIdleTime,
		"store.pool.health_check_period": p.HealthCheckPeriod,
	} {
		if d < 0 {
			errs = append(errs, ValidationError{Field: field, Value: d, Message: "must not be negative"})
		}
	}
	return errs
}

func (c *Config) validateSession() []ValidationError {
	var errs []ValidationError
	if c.Session.CounterpartyTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "session.counterparty_timeout",
			Value:   c.Session.CounterpartyTimeout,
			Message: "must be positive",
		})
	}
	if c.Session.DirectoryCacheSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "session.directory_cache_size",
			Value:   c.Session.DirectoryCacheSize,
			Message: "must be at least 1",
		})
	}
	if c.Session.IdempotencyCacheSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "session.idempotency_cache_size",
			Value:   c.Session.IdempotencyCacheSize,
			Message: "must be at least 1",
		})
	}
	return errs
}

func (c *Config) validatePeers() []ValidationError {
	var errs []ValidationError
	for i, p := range c.Peers {
		if strings.TrimSpace(p.Ref) == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("peers[%d].ref", i), Value: p.Ref, Message: "is required"})
		}
		if !validURL(p.URL) {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("peers[%d].url", i), Value: p.URL, Message: "must be an absolute http(s) URL"})
		}
	}
	return errs
}

func (c *Config) validateLogging() []ValidationError {
	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		return []ValidationError{{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		}}
	}
	return nil
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
