package config

import "testing"

func TestValidateAndSetDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Config{
		Queue: Queue{StorePath: "/tmp/ckindex-test"},
	}

	validator := NewValidator()
	if err := validator.ValidateAndSetDefaults(cfg); err != nil {
		t.Fatalf("ValidateAndSetDefaults failed: %v", err)
	}

	if cfg.WorkerPool.NumWorkers == 0 {
		t.Errorf("NumWorkers should have been set to a default")
	}
	if cfg.WorkerPool.MaxParsesBeforeRecycle != 5000 {
		t.Errorf("MaxParsesBeforeRecycle default = %d, want 5000", cfg.WorkerPool.MaxParsesBeforeRecycle)
	}
	if cfg.Store.MaxParseableSize != 2*1024*1024 {
		t.Errorf("MaxParseableSize default = %d, want 2MiB", cfg.Store.MaxParseableSize)
	}
	if cfg.Queue.GracefulShutdownDeadlineMS != 10_000 {
		t.Errorf("GracefulShutdownDeadlineMS default = %d, want 10000", cfg.Queue.GracefulShutdownDeadlineMS)
	}
}

func TestValidateStoreRejectsNegativeSize(t *testing.T) {
	v := NewValidator()
	if err := v.validateStore(&Store{MaxParseableSize: -1}); err == nil {
		t.Errorf("expected error for negative MaxParseableSize")
	}
	if err := v.validateStore(&Store{MaxParseableSize: 0}); err != nil {
		t.Errorf("expected no error for zero MaxParseableSize, got %v", err)
	}
}

func TestValidateWorkerPoolRejectsInconsistentTimeouts(t *testing.T) {
	v := NewValidator()

	if err := v.validateWorkerPool(&WorkerPool{NumWorkers: -1}); err == nil {
		t.Errorf("expected error for negative NumWorkers")
	}
	if err := v.validateWorkerPool(&WorkerPool{DefaultTimeoutMS: 60_000, MaxTimeoutMS: 30_000}); err == nil {
		t.Errorf("expected error when DefaultTimeoutMS exceeds MaxTimeoutMS")
	}
	if err := v.validateWorkerPool(&WorkerPool{DefaultTimeoutMS: 10_000, MaxTimeoutMS: 30_000}); err != nil {
		t.Errorf("expected no error for consistent timeouts, got %v", err)
	}
}

func TestValidateQueueRejectsEmptyStorePath(t *testing.T) {
	v := NewValidator()
	if err := v.validateQueue(&Queue{StorePath: ""}); err == nil {
		t.Errorf("expected error for empty StorePath")
	}
	if err := v.validateQueue(&Queue{StorePath: "/tmp/x", MaxRetries: -1}); err == nil {
		t.Errorf("expected error for negative MaxRetries")
	}
}

func TestValidateConfigConvenienceFunction(t *testing.T) {
	cfg := &Config{Queue: Queue{StorePath: "/tmp/ckindex-test"}}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("ValidateConfig failed: %v", err)
	}

	invalid := &Config{Queue: Queue{StorePath: ""}}
	if err := ValidateConfig(invalid); err == nil {
		t.Errorf("expected error for empty StorePath")
	}
}

func TestSetSmartDefaultsDoesNotOverrideExplicitValues(t *testing.T) {
	cfg := &Config{
		Queue:      Queue{StorePath: "/tmp/x"},
		WorkerPool: WorkerPool{NumWorkers: 2, DefaultTimeoutMS: 5000},
	}

	v := NewValidator()
	v.setSmartDefaults(cfg)

	if cfg.WorkerPool.NumWorkers != 2 {
		t.Errorf("explicit NumWorkers was overridden: got %d", cfg.WorkerPool.NumWorkers)
	}
	if cfg.WorkerPool.DefaultTimeoutMS != 5000 {
		t.Errorf("explicit DefaultTimeoutMS was overridden: got %d", cfg.WorkerPool.DefaultTimeoutMS)
	}
}
