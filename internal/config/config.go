// Package config holds the engine's configuration, grounded on the
// teacher's internal/config package: a typed Config struct, a default
// seeded with a generous exclude list, and a project/home merge step.
package config

import (
	"os"
	"runtime"
)

// Config is the top-level configuration value passed explicitly to the
// engine at construction (spec.md §9 Design Notes: "global mutable state
// ... express as explicit configuration structs and handles passed to
// entry points").
type Config struct {
	Store        Store
	Scanner      Scanner
	WorkerPool   WorkerPool
	Queue        Queue
	Watch        Watch
	Routing      Routing
	FeatureFlags FeatureFlags
	Include      []string
	Exclude      []string
}

// Store configures the content store (C1).
type Store struct {
	// MaxParseableSize is the size cap above which a file is stored but
	// flagged non-parseable (spec.md §4.1 default ~2MB).
	MaxParseableSize int64
}

// Scanner configures the manifest scanner (C2).
type Scanner struct {
	FollowSymlinks bool
}

// WorkerPool configures the parse worker pool (C7).
type WorkerPool struct {
	// NumWorkers is the number of persistent parse-worker child
	// processes (spec.md §4.7 default 4).
	NumWorkers int

	// MaxParsesBeforeRecycle is parsed, defaulted and handed to
	// workerpool.Config, but no worker receives it: the parse-worker entry
	// point starts RunWorker with a bound of 0, so workers are not recycled.
	MaxParsesBeforeRecycle int

	// DefaultTimeoutMS and MaxTimeoutMS bound a single parse request
	// (spec.md §5 default 30s, bounded at 120s).
	DefaultTimeoutMS int
	MaxTimeoutMS     int
}

// Queue configures the build queue / daemon (C8).
type Queue struct {
	// StorePath is the directory the daemon owns: content blobs,
	// queue state and the writer lock file all live under it.
	StorePath string

	// MaxRetries is parsed and validated here but not read by the
	// queue: its retry bound for `timeout` and `worker_crash` task
	// failures is the queue package's own maxRetries constant (one).
	MaxRetries int

	// GracefulShutdownDeadlineMS bounds how long the daemon waits for
	// in-flight tasks to drain before exiting anyway.
	GracefulShutdownDeadlineMS int
}

// Watch configures the optional file-watcher producer that appends to
// the pending-refresh log (SPEC_FULL.md DOMAIN STACK: fsnotify).
type Watch struct {
	Enabled    bool
	DebounceMS int
}

// Routing configures the routing table overlay (C6).
type Routing struct {
	// OverlayPath, if set, points at a routing.json overlay merged over
	// the compiled-in default routing table (SPEC_FULL.md SUPPLEMENTED
	// FEATURES: routing table as persisted JSON).
	OverlayPath string
}

// FeatureFlags toggles optional behavior without a recompile.
type FeatureFlags struct {
	EnableWatchMode        bool
	EnableDeterminismCheck bool
}

// Default returns a Config seeded the way the teacher seeds its own
// default: conservative limits, a broad exclude list covering VCS
// metadata, package-manager directories, build output and OS junk, plus
// the archived/deprecated script trees this spec treats as
// out-of-scope history rather than input (SPEC_FULL.md Non-goals).
func Default(storePath string) *Config {
	return &Config{
		Store: Store{
			MaxParseableSize: 2 * 1024 * 1024,
		},
		Scanner: Scanner{
			FollowSymlinks: false,
		},
		WorkerPool: WorkerPool{
			NumWorkers:             defaultWorkerCount(),
			MaxParsesBeforeRecycle: 5000,
			DefaultTimeoutMS:       30_000,
			MaxTimeoutMS:           120_000,
		},
		Queue: Queue{
			StorePath:                  storePath,
			MaxRetries:                 1,
			GracefulShutdownDeadlineMS: 10_000,
		},
		Watch: Watch{
			Enabled:    true,
			DebounceMS: 300,
		},
		Routing: Routing{},
		FeatureFlags: FeatureFlags{
			EnableWatchMode:        true,
			EnableDeterminismCheck: false,
		},
		Include: []string{},
		Exclude: []string{
			"**/.git/**",
			"**/.*/**",
			"**/__pycache__/**",
			"**/*.pyc",
			"**/node_modules/**",
			"**/vendor/**",
			"**/dist/**",
			"**/build/**",
			"**/out/**",
			"**/bin/**",
			"**/logs/**",
			"**/*.log",
			"**/Thumbs.db",
			"**/desktop.ini",
			"**/*.swp",
			"**/*.swo",
			"**/*~",
			// Archived/deprecated rewrite scripts are historical
			// reference, not ingestion input (spec.md §1 Non-goals).
			"**/archive/**",
			"**/legacy/**",
			"**/deprecated_*/**",
		},
	}
}

func defaultWorkerCount() int {
	n := runtime.NumCPU()
	if n > 4 {
		// spec.md §4.7 defaults to 4; allow the machine to go higher only
		// when explicitly reconfigured.
		return 4
	}
	if n < 1 {
		return 1
	}
	return n
}

// Merge combines a base config (e.g. loaded from a home-directory KDL
// file) with a project config, with the project's settings taking
// precedence but the base's exclusions preserved — the same merge
// discipline as the teacher's mergeConfigs.
func Merge(base, project *Config) *Config {
	if base == nil {
		return project
	}
	if project == nil {
		return base
	}

	merged := *project

	excludeSet := make(map[string]bool, len(base.Exclude)+len(project.Exclude))
	for _, p := range base.Exclude {
		excludeSet[p] = true
	}
	for _, p := range project.Exclude {
		excludeSet[p] = true
	}
	merged.Exclude = make([]string, 0, len(excludeSet))
	for p := range excludeSet {
		merged.Exclude = append(merged.Exclude, p)
	}

	if len(project.Include) == 0 && len(base.Include) > 0 {
		merged.Include = base.Include
	}

	return &merged
}

// HomeConfigPath returns the user's global config file path, or "" if
// the home directory cannot be determined.
func HomeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.ckindex.kdl"
}

// Load resolves the effective configuration for projectRoot: a global
// ~/.ckindex.kdl base merged under a project .ckindex.kdl, falling back to
// Default when neither is present. Mirrors the teacher's Load/LoadWithRoot
// two-tier resolution.
func Load(projectRoot string) (*Config, error) {
	var base *Config
	if home, err := os.UserHomeDir(); err == nil {
		if g, err := LoadKDL(home); err == nil && g != nil {
			base = g
		}
	}

	project, err := LoadKDL(projectRoot)
	if err != nil {
		return nil, err
	}

	var effective *Config
	switch {
	case base != nil && project != nil:
		effective = Merge(base, project)
	case project != nil:
		effective = project
	case base != nil:
		base.Queue.StorePath = projectRoot + "/.ckindex"
		effective = base
	default:
		effective = Default(projectRoot + "/.ckindex")
	}

	effective.Exclude = append(effective.Exclude, GitignoreExcludes(projectRoot)...)
	return effective, nil
}
