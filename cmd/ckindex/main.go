// Command ckindex drives the content-addressed mod index and conflict
// resolver described across internal/engine, internal/resolver, and
// internal/report. Grounded on the teacher's cmd/lci/main.go: a single
// urfave/cli app whose commands each build their own engine handle via
// loadEngine, and a hidden subcommand that re-execs the binary as a
// parser worker rather than shelling out to an external interpreter.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/paradoxindex/ckindex/internal/config"
	"github.com/paradoxindex/ckindex/internal/engine"
	"github.com/paradoxindex/ckindex/internal/launcher"
	"github.com/paradoxindex/ckindex/internal/query"
	"github.com/paradoxindex/ckindex/internal/queue"
	"github.com/paradoxindex/ckindex/internal/report"
	"github.com/paradoxindex/ckindex/internal/resolver"
	"github.com/paradoxindex/ckindex/internal/routing"
	"github.com/paradoxindex/ckindex/internal/types"
	"github.com/paradoxindex/ckindex/internal/version"
	"github.com/paradoxindex/ckindex/internal/workerpool"
)

const workerSubcommandEnvVar = "CKINDEX_REEXEC_WORKER"

func spawnSelfAsWorker() (*exec.Cmd, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(self, "parse-worker")
	cmd.Env = append(os.Environ(), workerSubcommandEnvVar+"=1")
	cmd.Stderr = os.Stderr
	return cmd, nil
}

func loadEngine(c *cli.Context) (*engine.Engine, error) {
	root := c.String("root")
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return engine.New(cfg, spawnSelfAsWorker, routing.Default())
}

func main() {
	if os.Getenv(workerSubcommandEnvVar) == "1" {
		workerpool.RunWorker(os.Stdin, os.Stdout, 0)
		os.Exit(0)
	}

	app := &cli.App{
		Name:    "ckindex",
		Usage:   "content-addressed mod indexer and conflict analyzer",
		Version: version.FullInfo(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "project root directory (defaults to the working directory)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "ingest",
				Usage: "ingest a vanilla install or a mod directory into the index",
				Subcommands: []*cli.Command{
					{
						Name:      "vanilla",
						Usage:     "ingest the base game install",
						ArgsUsage: "<version> <path>",
						Action:    ingestVanillaCommand,
					},
					{
						Name:      "mod",
						Usage:     "ingest a mod's content directory",
						ArgsUsage: "<workshop-id> <display-name> <path>",
						Action:    ingestModCommand,
					},
					{
						Name:      "playset",
						Usage:     "resolve a CK3 launcher playset export to a CVID list of already-ingested mods",
						ArgsUsage: "<launcher-export.json>",
						Action:    ingestPlaysetCommand,
					},
				},
			},
			{
				Name:   "start",
				Usage:  "run the build daemon, draining the queue until stopped",
				Action: startCommand,
			},
			{
				Name:   "stop",
				Usage:  "request the running daemon to release its writer lock",
				Action: stopCommand,
			},
			{
				Name:   "status",
				Usage:  "show whether a daemon currently holds the writer lock",
				Action: statusCommand,
			},
			{
				Name:   "reset",
				Usage:  "drop the on-disk queue database, forcing a clean rebuild",
				Action: resetCommand,
			},
			{
				Name:      "report",
				Usage:     "compute file- and symbol-level conflicts for a playset and print conflicts.v1 JSON",
				ArgsUsage: "<cvid> [<cvid> ...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "schema", Usage: "print the conflicts.v1 JSON schema instead of a report"},
					&cli.BoolFlag{Name: "verify-determinism", Usage: "build the report twice and fail unless the two runs are byte-identical apart from generated_at"},
				},
				Action: reportCommand,
			},
			{
				Name:  "query",
				Usage: "run a playset-scoped query against the index",
				Subcommands: []*cli.Command{
					{
						Name:      "symbols",
						ArgsUsage: "<cvid> [<cvid> ...] -- <query>",
						Action:    querySymbolsCommand,
					},
					{
						Name:      "files",
						ArgsUsage: "<cvid> [<cvid> ...] -- <glob>",
						Action:    queryFilesCommand,
					},
					{
						Name:      "content",
						ArgsUsage: "<cvid> [<cvid> ...] -- <substring>",
						Action:    queryContentCommand,
					},
				},
			},
			{
				Name:   "parse-worker",
				Usage:  "internal: speak the worker wire protocol over stdio",
				Hidden: true,
				Action: func(c *cli.Context) error {
					workerpool.RunWorker(os.Stdin, os.Stdout, 0)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ckindex: %v\n", err)
		os.Exit(1)
	}
}

func ingestVanillaCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: ckindex ingest vanilla <version> <path>")
	}
	e, err := loadEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.AcquireWriterLock(); err != nil {
		fmt.Fprintf(os.Stderr, "ckindex: cannot acquire writer lock: %v\n", err)
		os.Exit(queue.ExitWriterExists)
	}

	cv, err := e.IngestVanilla(c.Args().Get(0), c.Args().Get(1), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("ingest vanilla: %w", err)
	}
	fmt.Printf("ingested vanilla %s as cvid %d\n", c.Args().Get(0), cv.CVID)
	return nil
}

func ingestModCommand(c *cli.Context) error {
	if c.NArg() < 3 {
		return fmt.Errorf("usage: ckindex ingest mod <workshop-id> <display-name> <path>")
	}
	e, err := loadEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.AcquireWriterLock(); err != nil {
		fmt.Fprintf(os.Stderr, "ckindex: cannot acquire writer lock: %v\n", err)
		os.Exit(queue.ExitWriterExists)
	}

	cv, err := e.IngestMod(c.Args().Get(0), c.Args().Get(1), c.Args().Get(2), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("ingest mod: %w", err)
	}
	fmt.Printf("ingested mod %q as cvid %d\n", c.Args().Get(1), cv.CVID)
	return nil
}

func startCommand(c *cli.Context) error {
	e, err := loadEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.AcquireWriterLock(); err != nil {
		fmt.Fprintf(os.Stderr, "ckindex: cannot acquire writer lock: %v\n", err)
		os.Exit(queue.ExitWriterExists)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if e.Cfg.Watch.Enabled && e.Cfg.FeatureFlags.EnableWatchMode {
		if err := e.StartWatch(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "ckindex: watcher disabled: %v\n", err)
		}
	}

	if err := e.DrainQueue(ctx, 200*time.Millisecond); err != nil && ctx.Err() == nil {
		return fmt.Errorf("daemon loop: %w", err)
	}
	return nil
}

func stopCommand(c *cli.Context) error {
	root := c.String("root")
	if root == "" {
		root, _ = os.Getwd()
	}
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	info := queue.CheckWriterLock(cfg.Queue.StorePath)
	if !info.LockExists {
		fmt.Println("no daemon running")
		return nil
	}
	if !info.HolderAlive {
		fmt.Println("lock held by a dead process; safe to remove and restart")
		return nil
	}
	return syscall.Kill(info.HolderPID, syscall.SIGTERM)
}

func statusCommand(c *cli.Context) error {
	root := c.String("root")
	if root == "" {
		root, _ = os.Getwd()
	}
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	info := queue.CheckWriterLock(cfg.Queue.StorePath)
	fmt.Println(info.String())
	return nil
}

func resetCommand(c *cli.Context) error {
	root := c.String("root")
	if root == "" {
		root, _ = os.Getwd()
	}
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	path := cfg.Queue.StorePath + "/queue.db"
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reset queue: %w", err)
	}
	fmt.Println("queue reset")
	return nil
}

func parsePlayset(args []string) resolver.Playset {
	playset := make(resolver.Playset, 0, len(args))
	for _, a := range args {
		var id int64
		fmt.Sscanf(a, "%d", &id)
		playset = append(playset, types.CVID(id))
	}
	return playset
}

func reportCommand(c *cli.Context) error {
	if c.Bool("schema") {
		schema, err := json.MarshalIndent(report.Schema(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(schema))
		return nil
	}
	if c.NArg() < 1 {
		return fmt.Errorf("usage: ckindex report <cvid> [<cvid> ...]")
	}

	e, err := loadEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	playset := parsePlayset(c.Args().Slice())
	policies := resolver.DefaultPolicyMap()
	hint := launcher.CompatPatchHint(e.Registry)
	files := resolver.ResolveFiles(playset, e.Registry, policies)
	units := resolver.ResolveSymbols(playset, e.Registry, e.Cache, policies, nil, hint)
	ctx := report.ContextFromPlayset(playset, e.Registry)

	rpt := report.Build(ctx, files, units, time.Now().UTC().Format(time.RFC3339))
	if err := report.Validate(rpt); err != nil {
		return fmt.Errorf("generated report does not conform to conflicts.v1: %w", err)
	}

	if c.Bool("verify-determinism") {
		rerun := report.Build(ctx, files, units, time.Now().UTC().Format(time.RFC3339))
		if err := reportsMatchExceptTimestamp(rpt, rerun); err != nil {
			return fmt.Errorf("determinism check failed: %w", err)
		}
	}

	out, err := json.MarshalIndent(rpt, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// reportsMatchExceptTimestamp proves two Report values built from the
// same resolver output are identical apart from their generated_at
// stamp, grounded on original_source/scripts/determinism_proof.py's
// double-build-and-diff check.
func reportsMatchExceptTimestamp(a, b report.Report) error {
	a.GeneratedAt, b.GeneratedAt = "", ""
	aJSON, err := json.Marshal(a)
	if err != nil {
		return err
	}
	bJSON, err := json.Marshal(b)
	if err != nil {
		return err
	}
	if string(aJSON) != string(bJSON) {
		return fmt.Errorf("two report builds over the same playset produced different output")
	}
	return nil
}

func ingestPlaysetCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: ckindex ingest playset <launcher-export.json>")
	}

	data, err := os.ReadFile(c.Args().Get(0))
	if err != nil {
		return fmt.Errorf("read launcher export: %w", err)
	}
	export, err := launcher.ParseExport(data)
	if err != nil {
		return err
	}

	e, err := loadEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	playset, unresolved := launcher.ConvertToPlayset(export, e.Registry)
	for _, u := range unresolved {
		fmt.Fprintf(os.Stderr, "ckindex: skipping %q: %s\n", u.Name, u.Reason)
	}

	cvids := make([]string, 0, len(playset))
	for _, cvid := range playset {
		cvids = append(cvids, fmt.Sprint(cvid))
	}
	fmt.Println(strings.Join(cvids, " "))
	return nil
}

func splitPlaysetAndQuery(args []string) ([]string, string) {
	for i, a := range args {
		if a == "--" {
			return args[:i], args[i+1]
		}
	}
	if len(args) > 0 {
		return args[:len(args)-1], args[len(args)-1]
	}
	return nil, ""
}

func querySymbolsCommand(c *cli.Context) error {
	e, err := loadEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	cvids, q := splitPlaysetAndQuery(c.Args().Slice())
	playset := parsePlayset(cvids)
	eng := query.New(e.Registry, e.Cache, e.Store)
	hits := eng.SearchSymbols(playset, q, 20)
	out, _ := json.MarshalIndent(hits, "", "  ")
	fmt.Println(string(out))
	return nil
}

func queryFilesCommand(c *cli.Context) error {
	e, err := loadEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	cvids, glob := splitPlaysetAndQuery(c.Args().Slice())
	playset := parsePlayset(cvids)
	eng := query.New(e.Registry, e.Cache, e.Store)
	hits := eng.SearchFiles(playset, glob, 50)
	out, _ := json.MarshalIndent(hits, "", "  ")
	fmt.Println(string(out))
	return nil
}

func queryContentCommand(c *cli.Context) error {
	e, err := loadEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	cvids, substr := splitPlaysetAndQuery(c.Args().Slice())
	playset := parsePlayset(cvids)
	eng := query.New(e.Registry, e.Cache, e.Store)
	hits := eng.SearchContent(playset, substr, 50)
	out, _ := json.MarshalIndent(hits, "", "  ")
	fmt.Println(string(out))
	return nil
}
