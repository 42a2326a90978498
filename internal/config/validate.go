package config

import (
	"fmt"
	"net/url"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required",
		})
	}

	if cfg.SinkURL == "" {
		errs = append(errs, ValidationError{
			Field:   "SINK_URL",
			Message: "required",
		})
	} else if u, err := url.Parse(cfg.SinkURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, ValidationError{
			Field:   "SINK_URL",
			Message: fmt.Sprintf("must be an http or https URL, got %q", cfg.SinkURL),
		})
	}

	errs = append(errs, validateDuration("SINK_TIMEOUT", cfg.SinkTimeoutStr)...)
	errs = append(errs, validateDuration("BACKOFF_BASE", cfg.BackoffBaseStr)...)
	errs = append(errs, validateDuration("BACKOFF_CAP", cfg.BackoffCapStr)...)
	errs = append(errs, validateDuration("DB_OP_TIMEOUT", cfg.DBOpTimeoutStr)...)
	errs = append(errs, validateDuration("DB_CONN_MAX_LIFETIME", cfg.DBConnMaxLifetimeStr)...)
	errs = append(errs, validateDuration("DB_CONN_MAX_IDLE_TIME", cfg.DBConnMaxIdleTimeStr)...)
	errs = append(errs, validateDuration("HTTP_SHUTDOWN_TIMEOUT", cfg.HTTPShutdownTimeoutStr)...)
	errs = append(errs, validateDuration("DISPATCHER_DRAIN_TIMEOUT", cfg.DispatcherDrainTimeoutStr)...)
	errs = append(errs, validateDuration("RECONCILE_INTERVAL", cfg.ReconcileIntervalStr)...)
	errs = append(errs, validateDuration("RECONCILE_THRESHOLD", cfg.ReconcileThresholdStr)...)
	errs = append(errs, validateDuration("CIRCUIT_BREAKER_COOLDOWN", cfg.CircuitBreakerCooldownStr)...)

	if cfg.BackoffBase > 0 && cfg.BackoffCap > 0 && cfg.BackoffCap < cfg.BackoffBase {
		errs = append(errs, ValidationError{
			Field:   "BACKOFF_CAP",
			Message: fmt.Sprintf("must be >= BACKOFF_BASE (%s)", cfg.BackoffBaseStr),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateDuration(field, raw string) ValidationErrors {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return ValidationErrors{{
			Field:   field,
			Message: fmt.Sprintf("invalid duration: %v", err),
		}}
	}
	if d <= 0 {
		return ValidationErrors{{
			Field:   field,
			Message: "must be positive",
		}}
	}
	return nil
}
