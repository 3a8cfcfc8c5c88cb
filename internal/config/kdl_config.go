package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL attempts to load configuration from a .ckindex.kdl file in
// projectRoot, grounded on the teacher's LoadKDL. Returns (nil, nil) when
// no file is present, so callers fall back to Default.
func LoadKDL(projectRoot string) (*Config, error) {
	kdlPath := filepath.Join(projectRoot, ".ckindex.kdl")

	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read .ckindex.kdl: %w", err)
	}

	return parseKDL(string(content), projectRoot)
}

func parseKDL(content, projectRoot string) (*Config, error) {
	cfg := Default(filepath.Join(projectRoot, ".ckindex"))

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "store":
			for _, cn := range n.Children {
				if nodeName(cn) == "max_parseable_size" {
					if v, ok := firstIntArg(cn); ok {
						cfg.Store.MaxParseableSize = int64(v)
					}
				}
			}
		case "scanner":
			for _, cn := range n.Children {
				if nodeName(cn) == "follow_symlinks" {
					if b, ok := firstBoolArg(cn); ok {
						cfg.Scanner.FollowSymlinks = b
					}
				}
			}
		case "worker_pool":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "num_workers":
					if v, ok := firstIntArg(cn); ok {
						cfg.WorkerPool.NumWorkers = v
					}
				case "max_parses_before_recycle":
					if v, ok := firstIntArg(cn); ok {
						cfg.WorkerPool.MaxParsesBeforeRecycle = v
					}
				case "default_timeout_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.WorkerPool.DefaultTimeoutMS = v
					}
				case "max_timeout_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.WorkerPool.MaxTimeoutMS = v
					}
				}
			}
		case "queue":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "store_path":
					if s, ok := firstStringArg(cn); ok {
						if filepath.IsAbs(s) {
							cfg.Queue.StorePath = s
						} else {
							cfg.Queue.StorePath = filepath.Join(projectRoot, s)
						}
					}
				case "max_retries":
					if v, ok := firstIntArg(cn); ok {
						cfg.Queue.MaxRetries = v
					}
				case "graceful_shutdown_deadline_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Queue.GracefulShutdownDeadlineMS = v
					}
				}
			}
		case "watch":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "enabled":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Watch.Enabled = b
					}
				case "debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Watch.DebounceMS = v
					}
				}
			}
		case "routing":
			for _, cn := range n.Children {
				if nodeName(cn) == "overlay_path" {
					if s, ok := firstStringArg(cn); ok {
						cfg.Routing.OverlayPath = s
					}
				}
			}
		case "feature_flags":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "enable_watch_mode":
					if b, ok := firstBoolArg(cn); ok {
						cfg.FeatureFlags.EnableWatchMode = b
					}
				case "enable_determinism_check":
					if b, ok := firstBoolArg(cn); ok {
						cfg.FeatureFlags.EnableDeterminismCheck = b
					}
				}
			}
		case "include":
			cfg.Include = append(cfg.Include, collectStringArgs(n)...)
		case "exclude":
			cfg.Exclude = collectStringArgs(n)
		}
	}

	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
