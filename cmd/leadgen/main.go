// Command leadgen runs the prospect pipeline once from the command line, or
// issues API tokens with the token subcommand.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"github.com/octobees/leadgen/internal/app"
	"github.com/octobees/leadgen/internal/auth"
	"github.com/octobees/leadgen/internal/config"
	"github.com/octobees/leadgen/internal/dto"
	"github.com/octobees/leadgen/internal/logger"
	"github.com/octobees/leadgen/internal/service/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	if len(args) > 0 && args[0] == "token" {
		return runToken(cfg, args[1:], stdout, stderr)
	}

	opts, err := parseRunFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return 1
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.Build(setupCtx, cfg, zlog)
	cancel()
	if err != nil {
		zlog.Error("failed to wire dependencies", zap.Error(err))
		return 1
	}
	defer deps.Close()

	stats, err := deps.Runner.Run(ctx, opts)
	if err != nil {
		zlog.Error("pipeline run failed", zap.Error(err))
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stats); err != nil {
		fmt.Fprintf(stderr, "write stats: %v\n", err)
		return 1
	}
	return 0
}

func parseRunFlags(args []string, stderr io.Writer) (pipeline.Options, error) {
	fs := flag.NewFlagSet("leadgen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: leadgen --query <text> --city <name> --lat <deg> --lng <deg> [options]")
		fmt.Fprintln(stderr, "       leadgen token -subject <name> [-role admin|viewer] [-org <id>]")
		fmt.Fprintln(stderr)
		fs.PrintDefaults()
	}

	var (
		opts     pipeline.Options
		lat      = fs.String("lat", "", "latitude of the search centre (required)")
		lng      = fs.String("lng", "", "longitude of the search centre (required)")
		minScore = fs.Int("minScore", -1, "skip prospects scoring below this value (0-100)")
	)
	fs.StringVar(&opts.Query, "query", "", "search text, e.g. \"plumber\" (required)")
	fs.StringVar(&opts.City, "city", "", "city the search targets (required)")
	fs.Float64Var(&opts.Radius, "radius", 30000, "search radius in metres")
	fs.StringVar(&opts.Category, "category", "", "place type to restrict results to")
	fs.IntVar(&opts.Pages, "pages", 3, "maximum result pages to fetch")
	fs.BoolVar(&opts.EnrichEmails, "enrichEmails", false, "discover contact emails")
	fs.BoolVar(&opts.EnrichSocial, "enrichSocial", false, "verify social profiles")
	fs.BoolVar(&opts.EnrichIntelligence, "enrichIntelligence", false, "fingerprint the website")
	fs.BoolVar(&opts.SkipSuspicious, "skipSuspicious", false, "skip businesses whose website looks like spam")
	fs.BoolVar(&opts.DeepTrust, "deepTrust", false, "check each website with a HEAD request")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, usageError(fs, stderr, fmt.Sprintf("unexpected argument %q", fs.Arg(0)))
	}
	if *lat == "" || *lng == "" {
		return opts, usageError(fs, stderr, "--lat and --lng are required")
	}
	var err error
	if opts.Lat, err = strconv.ParseFloat(strings.TrimSpace(*lat), 64); err != nil {
		return opts, usageError(fs, stderr, "invalid --lat")
	}
	if opts.Lng, err = strconv.ParseFloat(strings.TrimSpace(*lng), 64); err != nil {
		return opts, usageError(fs, stderr, "invalid --lng")
	}
	if *minScore >= 0 {
		opts.MinScore = minScore
	}
	if err := opts.Validate(); err != nil {
		return opts, usageError(fs, stderr, err.Error())
	}
	return opts, nil
}

func runToken(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("leadgen token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("subject", "", "token subject (required)")
	role := fs.String("role", auth.RoleViewer, "token role: admin or viewer")
	orgID := fs.String("org", cfg.OrgID, "organisation the token is scoped to")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if *subject == "" {
		_ = usageError(fs, stderr, "-subject is required")
		return 1
	}
	if *role != auth.RoleAdmin && *role != auth.RoleViewer {
		_ = usageError(fs, stderr, fmt.Sprintf("unknown role %q", *role))
		return 1
	}

	token, err := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL).GenerateToken(*subject, *orgID, *role)
	if err != nil {
		fmt.Fprintf(stderr, "issue token: %v\n", err)
		return 1
	}
	if err := json.NewEncoder(stdout).Encode(dto.TokenResponse{AccessToken: token, TokenType: "Bearer"}); err != nil {
		fmt.Fprintf(stderr, "write token: %v\n", err)
		return 1
	}
	return 0
}

func usageError(fs *flag.FlagSet, stderr io.Writer, msg string) error {
	fmt.Fprintf(stderr, "error: %s\n", msg)
	fs.Usage()
	return errors.New(msg)
}
