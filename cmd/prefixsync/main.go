package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/ArticSeths/github-hooks-cidr-aws-prefix-list/internal/awsclient"
	"github.com/ArticSeths/github-hooks-cidr-aws-prefix-list/internal/config"
	"github.com/ArticSeths/github-hooks-cidr-aws-prefix-list/internal/kvs"
	"github.com/ArticSeths/github-hooks-cidr-aws-prefix-list/internal/orchestrator"
	"github.com/ArticSeths/github-hooks-cidr-aws-prefix-list/internal/source"
)

var version = "dev"

func main() {
	// The Lambda runtime starts the binary without arguments.
	if len(os.Args) < 2 && os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		runLambda(nil)
		return
	}
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runOnce(os.Args[2:])
	case "lambda":
		runLambda(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: prefixsync <command> [flags]\n\nCommands:\n  run      Sync prefix lists with GitHub webhook ranges once\n  lambda   Serve the sync as an AWS Lambda function\n  version  Print version\n\nRun 'prefixsync run --help' for flags.\n")
}

// options are the flags shared by run and lambda.
type options struct {
	configPath   string
	targets      []string
	onFetchError string
	sourceURL    string
	sourceKey    string
	maxAttempts  int
	kvsName      string
	logLevel     string
	logFormat    string
	dryRun       bool
}

func parseFlags(name string, args []string) *options {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "path to config file (default $"+config.EnvConfigPath+" or "+config.DefaultPath+")")
	fs.StringArrayVar(&o.targets, "target", nil, "target as region:ipv4-list:ipv6-list[:role-arn]; repeatable, replaces configured targets")
	fs.StringVar(&o.onFetchError, "on-fetch-error", "", "behavior when the GitHub meta fetch fails: reconcile-empty or skip")
	fs.StringVar(&o.sourceURL, "source-url", "", "GitHub meta API URL")
	fs.StringVar(&o.sourceKey, "source-key", "", "meta document field holding the CIDRs")
	fs.IntVar(&o.maxAttempts, "max-wait-attempts", -1, "resize polls before giving up (0 waits forever)")
	fs.StringVar(&o.kvsName, "mirror-kvs-name", "", "CloudFront KeyValueStore to mirror CIDRs into")
	fs.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&o.logFormat, "log-format", "", "log format (text or json)")
	fs.BoolVar(&o.dryRun, "dry-run", false, "compute and log changes without modifying anything")
	fs.Parse(args)
	return o
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(o *options) config.Config {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		fatal("%v", err)
	}

	if len(o.targets) > 0 {
		cfg.Targets = nil
		for _, s := range o.targets {
			t, err := config.ParseTargetFlag(s)
			if err != nil {
				fatal("%v", err)
			}
			cfg.Targets = append(cfg.Targets, t)
		}
	}
	if o.onFetchError != "" {
		cfg.OnFetchError = o.onFetchError
	}
	if o.sourceURL != "" {
		cfg.Source.URL = o.sourceURL
	}
	if o.sourceKey != "" {
		cfg.Source.Key = o.sourceKey
	}
	if o.maxAttempts >= 0 {
		cfg.Wait.MaxAttempts = o.maxAttempts
	}
	if o.kvsName != "" {
		cfg.Mirror.KVSName = o.kvsName
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}

	if err := cfg.Validate(); err != nil {
		fatal("%v", err)
	}
	return cfg
}

func setupLogging(cfg config.Config, forceJSON bool) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		fatal("invalid log level %q: %v", cfg.LogLevel, err)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	if forceJSON || strings.EqualFold(cfg.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func buildOrchestrator(ctx context.Context, cfg config.Config, dryRun bool) *orchestrator.Orchestrator {
	factory, err := awsclient.Load(ctx)
	if err != nil {
		fatal("%v", err)
	}

	opts := orchestrator.Options{
		Targets: cfg.Targets,
		Fetcher: &source.Fetcher{
			URL:    cfg.Source.URL,
			Key:    cfg.Source.Key,
			Client: &http.Client{Timeout: time.Duration(cfg.Source.Timeout)},
		},
		Clients:          factory,
		OnFetchError:     cfg.OnFetchError,
		EntryDescription: cfg.EntryDescription,
		DryRun:           dryRun,
		PollInterval:     time.Duration(cfg.Wait.Interval),
		MaxAttempts:      cfg.Wait.MaxAttempts,
	}
	if cfg.Mirror.KVSName != "" {
		cf, kvsClient := factory.CloudFront(cfg.Mirror.Region)
		opts.Mirror = &kvs.Mirror{
			Resolver: cf,
			Client:   kvsClient,
			Name:     cfg.Mirror.KVSName,
			DryRun:   dryRun,
		}
	}
	return orchestrator.New(opts)
}

func runOnce(args []string) {
	o := parseFlags("run", args)
	cfg := loadConfig(o)
	setupLogging(cfg, false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := buildOrchestrator(ctx, cfg, o.dryRun)
	report, err := orch.Run(ctx)
	if err != nil {
		fatal("%v", err)
	}
	printReport(report, o.dryRun)
}

func runLambda(args []string) {
	o := parseFlags("lambda", args)
	cfg := loadConfig(o)
	setupLogging(cfg, true)

	// Clients are built once per execution environment and reused by warm invocations.
	orch := buildOrchestrator(context.Background(), cfg, o.dryRun)
	handler := &orchestrator.Handler{Orchestrator: orch}
	lambda.Start(handler.Handle)
}

func printReport(report *orchestrator.Report, dryRun bool) {
	if report.Skipped {
		fmt.Fprintf(os.Stderr, "\nSource unavailable (%v). No changes made.\n", report.FetchError)
		return
	}
	if len(report.Rejected) > 0 {
		fmt.Fprintf(os.Stderr, "\nIgnored %d invalid CIDRs: %s\n", len(report.Rejected), strings.Join(report.Rejected, ", "))
	}

	fmt.Fprintf(os.Stderr, "\nPrefix lists:\n")
	for _, l := range report.Lists {
		status := fmt.Sprintf("%d adds, %d removes", len(l.Added), len(l.Removed))
		if l.NoOp {
			status = "unchanged"
		}
		if l.ResizedTo > 0 {
			status += fmt.Sprintf(", capacity -> %d", l.ResizedTo)
		}
		fmt.Fprintf(os.Stderr, "  %-15s %-5s %s: %s\n", l.Region, l.Family, l.PrefixListID, status)
	}
	if report.Mirror != nil {
		fmt.Fprintf(os.Stderr, "KVS mirror: %d puts, %d deletes\n", len(report.Mirror.Puts), len(report.Mirror.Deletes))
	}

	if dryRun {
		fmt.Fprintf(os.Stderr, "\nDry run complete. No changes made.\n")
		return
	}
	fmt.Fprintf(os.Stderr, "\nSync complete.\n")
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
