package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mattjoyce/linedesk/internal/api"
	"github.com/mattjoyce/linedesk/internal/config"
	"github.com/mattjoyce/linedesk/internal/events"
	"github.com/mattjoyce/linedesk/internal/inbox"
	"github.com/mattjoyce/linedesk/internal/line"
	"github.com/mattjoyce/linedesk/internal/lock"
	"github.com/mattjoyce/linedesk/internal/log"
	"github.com/mattjoyce/linedesk/internal/policy"
	"github.com/mattjoyce/linedesk/internal/webhook"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "start":
		return runStart(args)
	case "config":
		return runConfigNoun(args)
	case "push":
		return runPush(args)
	case "sign":
		return runSign(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`linedesk - LINE webhook inbox and operator relay

Usage:
  linedesk <command> [flags]

Commands:
  start          Run the webhook receiver and operator API in foreground
  config check   Load and validate configuration, then exit
  push           Send a text message to a user id
  sign           Print the x-line-signature for a request body
  version        Show version metadata
  help           Show this help

Configuration is read from --config, $LINEDESK_CONFIG, ~/.config/linedesk/config.yaml,
/etc/linedesk/config.yaml or ./config.yaml, then overridden by environment variables
(LINE_CHANNEL_SECRET, LINE_CHANNEL_ACCESS_TOKEN, LINEDESK_LISTEN, LINEDESK_LOG_LEVEL,
LINEDESK_POLICY). A .env file in the working directory is loaded first.
`)
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// loadConfig resolves the config path (flag, then discovery) and loads it.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		configPath = config.DiscoverConfigPath()
		if configPath != "" {
			fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", configPath)
		}
	}
	return config.Load(configPath)
}

func runConfigNoun(args []string) int {
	if len(args) == 0 || hasHelpFlag(args[:1]) {
		fmt.Fprintln(os.Stderr, "Usage: linedesk config <action> [flags]")
		fmt.Fprintln(os.Stderr, "Actions: check")
		if len(args) == 0 {
			return 1
		}
		return 0
	}

	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}

	source := cfg.SourceFile
	if source == "" {
		source = "(defaults + environment)"
	}
	fmt.Printf("Configuration valid: %s\n", source)
	fmt.Printf("  listen:   %s\n", cfg.Server.Listen)
	fmt.Printf("  policy:   %s (%d rules)\n", cfg.Policy.Mode, len(cfg.Policy.Rules))
	fmt.Printf("  capacity: %d\n", cfg.Inbox.Capacity)
	return 0
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("linedesk starting", "version", version, "config", cfg.SourceFile)

	if cfg.Service.PIDFile != "" {
		pidLock, err := lock.Acquire(cfg.Service.PIDFile)
		if err != nil {
			logger.Error("failed to acquire PID lock", "path", cfg.Service.PIDFile, "error", err)
			return 1
		}
		defer func() { _ = pidLock.Release() }()
		logger.Info("acquired PID lock", "path", pidLock.Path())
	}

	app, err := newApp(cfg)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("linedesk running (press Ctrl+C to stop)",
		"listen", cfg.Server.Listen,
		"policy", app.policy.Name(),
		"capacity", cfg.Inbox.Capacity,
	)

	if err := app.run(ctx, logger); err != nil {
		logger.Error("component failed", "error", err)
		return 1
	}
	logger.Info("linedesk stopped")
	return 0
}

// app is the wired service graph.
type app struct {
	inbox      *inbox.Buffer
	hub        *events.Hub
	client     *line.Client
	dispatcher *policy.Dispatcher
	policy     policy.Policy
	server     *api.Server
}

func newApp(cfg *config.Config) (*app, error) {
	buf := inbox.New(cfg.Inbox.Capacity)
	hub := events.NewHub(cfg.Server.EventBacklog)
	client := newLineClient(cfg)

	dispatcher := policy.NewDispatcher(client, hub, log.WithComponent("reply"), cfg.Policy.ReplyTimeout)
	p, err := policy.New(policy.Config{
		Mode:  cfg.Policy.Mode,
		Rules: cfg.Policy.RuleSet(),
	}, dispatcher, log.WithComponent("policy"))
	if err != nil {
		return nil, err
	}

	whConfig, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		return nil, err
	}
	wh := webhook.New(whConfig, buf, p, hub, log.WithComponent("webhook"))

	server := api.New(api.Config{
		Listen:         cfg.Server.Listen,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		PolicyName:     p.Name(),
	}, wh, client, buf, hub, log.WithComponent("api"))

	return &app{
		inbox:      buf,
		hub:        hub,
		client:     client,
		dispatcher: dispatcher,
		policy:     p,
		server:     server,
	}, nil
}

// run serves until ctx is done or the server fails, then shuts down in
// order: the HTTP server first, so no webhook is still dispatching replies,
// then the reply dispatcher.
func (a *app) run(ctx context.Context, logger *slog.Logger) error {
	serverDone := make(chan error, 1)
	go func() { serverDone <- a.server.Start(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		// Start returns once in-flight requests have finished.
		if err := <-serverDone; err != nil && !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("api: %w", err)
		}
	case err := <-serverDone:
		runErr = fmt.Errorf("api: %w", err)
	}

	// Sends already started keep their own timeout; allow for it.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), a.dispatcher.Timeout()+time.Second)
	defer waitCancel()
	if err := a.dispatcher.Shutdown(waitCtx); err != nil {
		logger.Warn("pending replies abandoned at shutdown", "error", err)
	}

	if n := a.inbox.Len(); n > 0 {
		logger.Warn("unread messages discarded at shutdown", "count", n)
	}
	return runErr
}

func newLineClient(cfg *config.Config) *line.Client {
	return line.NewClient(line.Config{
		BaseURL:     cfg.Line.APIBaseURL,
		AccessToken: cfg.Line.ChannelAccessToken,
		Timeout:     cfg.Line.RequestTimeout,
	})
}

func runPush(args []string) int {
	fs := flag.NewFlagSet("push", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	to := fs.String("to", "", "Recipient user id")
	message := fs.String("message", "", "Text to send")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*to) == "" || *message == "" {
		fmt.Fprintln(os.Stderr, "Usage: linedesk push --to USER_ID --message TEXT")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Line.RequestTimeout)
	defer cancel()
	if err := newLineClient(cfg).Push(ctx, *to, *message); err != nil {
		fmt.Fprintf(os.Stderr, "Push failed: %v\n", err)
		return 1
	}
	fmt.Println("Push sent")
	return 0
}

func runSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	file := fs.String("file", "", "Request body file (- for stdin)")
	secret := fs.String("secret", "", "Channel secret (defaults to $LINE_CHANNEL_SECRET)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: linedesk sign --file BODY [--secret SECRET]")
		return 1
	}
	if *secret == "" {
		*secret = os.Getenv("LINE_CHANNEL_SECRET")
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "No channel secret: pass --secret or set LINE_CHANNEL_SECRET")
		return 1
	}

	var (
		body []byte
		err  error
	)
	if *file == "-" {
		body, err = io.ReadAll(os.Stdin)
	} else {
		body, err = os.ReadFile(*file)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read body: %v\n", err)
		return 1
	}

	fmt.Println(webhook.Sign(body, *secret))
	return 0
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("linedesk %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}
