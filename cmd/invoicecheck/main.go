// Command invoicecheck validates invoice documents from the command line
// and manages stored rule sets.
//
// Usage:
//
//	invoicecheck validate [-ruleset VERSION] FILE...
//	invoicecheck rulesets
//	invoicecheck publish [-activate] FILE.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"invoicecheck/internal/app"
	"invoicecheck/internal/config"
	"invoicecheck/internal/domain"
	"invoicecheck/internal/engine"
	"invoicecheck/internal/logger"
	"invoicecheck/internal/ruleset"
)

// Exit codes.
const (
	exitOK      = 0
	exitInvalid = 1
	exitUsage   = 2
	exitError   = 3
)

const usage = `usage:
  invoicecheck validate [-ruleset VERSION] FILE...
  invoicecheck rulesets
  invoicecheck publish [-activate] FILE.yaml
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: "console", Output: stderr})

	cli := &cli{cfg: cfg, log: log, stdout: stdout, stderr: stderr}
	switch args[0] {
	case "validate":
		return cli.validate(ctx, args[1:])
	case "rulesets":
		return cli.ruleSets(ctx)
	case "publish":
		return cli.publish(ctx, args[1:])
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return exitUsage
	}
}

type cli struct {
	cfg    *config.Config
	log    zerolog.Logger
	stdout io.Writer
	stderr io.Writer
}

func (c *cli) openProvider() (*ruleset.Provider, *app.Store, error) {
	store, err := app.OpenStore(c.cfg)
	if err != nil {
		return nil, nil, err
	}
	return app.NewProvider(&c.cfg.RuleSet, store), store, nil
}

// validate prints one report per file and exits non-zero when any
// document is invalid.
func (c *cli) validate(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	version := fs.String("ruleset", "", "rule-set version (default: the active one)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fmt.Fprint(c.stderr, usage)
		return exitUsage
	}

	provider, store, err := c.openProvider()
	if err != nil {
		c.log.Error().Err(err).Msg("open rule-set store")
		return exitError
	}
	defer func() { _ = store.Close() }()

	validator := engine.New(provider, app.EngineOptions(&c.cfg.Engine, logger.Component(c.log, "engine"), nil)...)

	code := exitOK
	for _, name := range fs.Args() {
		f, err := os.Open(name)
		if err != nil {
			c.log.Error().Err(err).Str("file", name).Msg("open document")
			return exitError
		}
		rep := validator.Validate(ctx, engine.Input{Body: f, RuleSet: *version})
		_ = f.Close()

		if err := rep.Render(c.stdout); err != nil {
			c.log.Error().Err(err).Msg("render report")
			return exitError
		}
		fmt.Fprintln(c.stdout)

		counts := rep.Counts()
		c.log.Info().
			Str("file", name).
			Str("verdict", string(rep.Verdict)).
			Int("errors", counts[domain.SeverityError]).
			Int("warnings", counts[domain.SeverityWarning]).
			Msg("validated")
		if !rep.Valid() {
			code = exitInvalid
		}
	}
	return code
}

func (c *cli) ruleSets(ctx context.Context) int {
	provider, store, err := c.openProvider()
	if err != nil {
		c.log.Error().Err(err).Msg("open rule-set store")
		return exitError
	}
	defer func() { _ = store.Close() }()

	recs, err := provider.Versions(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("list rule sets")
		return exitError
	}
	for _, rec := range recs {
		marker := " "
		if rec.IsActive {
			marker = "*"
		}
		fmt.Fprintf(c.stdout, "%s %s\n", marker, rec.Version)
	}
	return exitOK
}

// publish compiles a definition and stores it in the configured source.
func (c *cli) publish(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	activate := fs.Bool("activate", false, "make the published version active (postgres only)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprint(c.stderr, usage)
		return exitUsage
	}

	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		c.log.Error().Err(err).Msg("read definition")
		return exitError
	}
	rs, err := ruleset.Load(&domain.RuleSetRecord{Definition: raw}, nil)
	if err != nil {
		c.log.Error().Err(err).Msg("definition does not compile")
		return exitError
	}
	rec := &domain.RuleSetRecord{Version: rs.Version, Definition: raw}

	store, err := app.OpenStore(c.cfg)
	if err != nil {
		c.log.Error().Err(err).Msg("open rule-set store")
		return exitError
	}
	defer func() { _ = store.Close() }()

	if err := publishTo(ctx, store, rec, *activate); err != nil {
		c.log.Error().Err(err).Str("rule_set", rec.Version).Msg("publish failed")
		return exitError
	}
	c.log.Info().
		Str("rule_set", rec.Version).
		Str("digest", rs.Digest).
		Bool("activated", *activate && store.Repo != nil).
		Msg("rule set published")
	return exitOK
}

var errReadOnlySource = errors.New("rule-set source is read-only")

func publishTo(ctx context.Context, store *app.Store, rec *domain.RuleSetRecord, activate bool) error {
	switch {
	case store.Repo != nil:
		if err := store.Repo.Save(ctx, rec); err != nil {
			return err
		}
		if activate {
			return store.Repo.Activate(ctx, rec.Version)
		}
		return nil
	case store.Objects != nil:
		if activate {
			return errors.New("the s3 source has no active flag, set INVOICECHECK_RULESET_ACTIVE instead")
		}
		return store.Objects.Publish(ctx, rec)
	default:
		return errReadOnlySource
	}
}
