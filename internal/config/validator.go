package config

import (
	"fmt"

	cerrors "github.com/paradoxindex/ckindex/internal/errors"
)

// Validator checks a Config for internally-inconsistent values and fills
// in zero-valued fields with smart defaults, the same two-pass shape as
// the teacher's own Validator (ValidateAndSetDefaults / setSmartDefaults).
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates cfg and applies smart defaults for any
// zero-valued field that has one. Returns an error if a set value is out
// of range.
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateStore(&cfg.Store); err != nil {
		return err
	}
	if err := v.validateWorkerPool(&cfg.WorkerPool); err != nil {
		return err
	}
	if err := v.validateQueue(&cfg.Queue); err != nil {
		return err
	}

	v.setSmartDefaults(cfg)
	return nil
}

func (v *Validator) validateStore(store *Store) error {
	if store.MaxParseableSize < 0 {
		return cerrors.NewConfigError("store.max_parseable_size", fmt.Sprint(store.MaxParseableSize),
			fmt.Errorf("cannot be negative"))
	}
	return nil
}

func (v *Validator) validateWorkerPool(wp *WorkerPool) error {
	if wp.NumWorkers < 0 {
		return cerrors.NewConfigError("worker_pool.num_workers", fmt.Sprint(wp.NumWorkers),
			fmt.Errorf("cannot be negative"))
	}
	if wp.MaxParsesBeforeRecycle < 0 {
		return cerrors.NewConfigError("worker_pool.max_parses_before_recycle", fmt.Sprint(wp.MaxParsesBeforeRecycle),
			fmt.Errorf("cannot be negative"))
	}
	if wp.DefaultTimeoutMS < 0 {
		return cerrors.NewConfigError("worker_pool.default_timeout_ms", fmt.Sprint(wp.DefaultTimeoutMS),
			fmt.Errorf("cannot be negative"))
	}
	if wp.MaxTimeoutMS > 0 && wp.DefaultTimeoutMS > wp.MaxTimeoutMS {
		return cerrors.NewConfigError("worker_pool.default_timeout_ms", fmt.Sprint(wp.DefaultTimeoutMS),
			fmt.Errorf("cannot exceed max_timeout_ms (%d)", wp.MaxTimeoutMS))
	}
	return nil
}

func (v *Validator) validateQueue(q *Queue) error {
	if q.StorePath == "" {
		return cerrors.NewConfigError("queue.store_path", "", fmt.Errorf("cannot be empty"))
	}
	if q.MaxRetries < 0 {
		return cerrors.NewConfigError("queue.max_retries", fmt.Sprint(q.MaxRetries), fmt.Errorf("cannot be negative"))
	}
	if q.GracefulShutdownDeadlineMS < 0 {
		return cerrors.NewConfigError("queue.graceful_shutdown_deadline_ms", fmt.Sprint(q.GracefulShutdownDeadlineMS),
			fmt.Errorf("cannot be negative"))
	}
	return nil
}

// setSmartDefaults fills in zero-valued fields that have a sensible
// machine-derived default, the same approach as the teacher's own
// CPU-count-derived worker/goroutine defaults.
func (v *Validator) setSmartDefaults(cfg *Config) {
	if cfg.WorkerPool.NumWorkers == 0 {
		cfg.WorkerPool.NumWorkers = defaultWorkerCount()
	}
	if cfg.WorkerPool.MaxParsesBeforeRecycle == 0 {
		cfg.WorkerPool.MaxParsesBeforeRecycle = 5000
	}
	if cfg.WorkerPool.DefaultTimeoutMS == 0 {
		cfg.WorkerPool.DefaultTimeoutMS = 30_000
	}
	if cfg.WorkerPool.MaxTimeoutMS == 0 {
		cfg.WorkerPool.MaxTimeoutMS = 120_000
	}
	if cfg.Store.MaxParseableSize == 0 {
		cfg.Store.MaxParseableSize = 2 * 1024 * 1024
	}
	if cfg.Queue.GracefulShutdownDeadlineMS == 0 {
		cfg.Queue.GracefulShutdownDeadlineMS = 10_000
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = 300
	}
}

// ValidateConfig is a convenience function for one-shot validation.
func ValidateConfig(cfg *Config) error {
	validator := NewValidator()
	return validator.ValidateAndSetDefaults(cfg)
}
