// Calrelay is a daemon that syncs a local calendar ↔ Google Calendar
// bidirectionally using fingerprint-based change detection, with explicit
// conflict records for events modified on both sides.
//
// Usage:
//
//	calrelay auth [--config <path>]                       # interactive OAuth flow
//	calrelay daemon [--config <path>]                     # start the polling engine
//	calrelay sync-once --user <id> [--config ...]         # single full run then exit
//	calrelay sync-event --user <id> --event <id>          # push one local event
//	calrelay conflicts --user <id>                        # list pending conflicts
//	calrelay resolve --user <id> --id <conflict> --choice keep_local|keep_google|merge
//	calrelay prefs --user <id> [--enabled ...] [--direction ...]
//	calrelay status [--user <id>]                         # show config & recent runs
//	calrelay version                                      # print version
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/calrelay/calrelay/internal/config"
	"github.com/calrelay/calrelay/internal/google"
	"github.com/calrelay/calrelay/internal/model"
	"github.com/calrelay/calrelay/internal/store"
	syncp "github.com/calrelay/calrelay/internal/sync"
	"github.com/calrelay/calrelay/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Optional .env for GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET.
	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// run dispatches to the appropriate subcommand.
func run() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "auth":
		return runAuth(args)
	case "daemon":
		return runDaemon(args)
	case "sync-once":
		return runSyncOnce(args)
	case "sync-event":
		return runSyncEvent(args)
	case "conflicts":
		return runConflicts(args)
	case "resolve":
		return runResolve(args)
	case "prefs":
		return runPrefs(args)
	case "status":
		return runStatus(args)
	case "version":
		fmt.Println("calrelay", version)
		return nil
	}

	return fmt.Errorf("unknown command %q, run 'calrelay' for usage", cmd)
}

func printUsage() error {
	cfgPath, _ := config.DefaultPath()
	_, cfgErr := os.Stat(cfgPath)

	fmt.Fprintln(os.Stderr, "Calrelay: bidirectional sync between a local calendar and Google Calendar")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  calrelay auth                         Interactive OAuth authorization")
	fmt.Fprintln(os.Stderr, "  calrelay daemon [--config ...]        Run the polling engine")
	fmt.Fprintln(os.Stderr, "  calrelay sync-once --user <id>        Single full sync then exit")
	fmt.Fprintln(os.Stderr, "  calrelay sync-event --user --event    Push one local event now")
	fmt.Fprintln(os.Stderr, "  calrelay conflicts --user <id>        List pending conflicts")
	fmt.Fprintln(os.Stderr, "  calrelay resolve --user --id --choice Resolve a pending conflict")
	fmt.Fprintln(os.Stderr, "  calrelay prefs --user <id> [...]      Show or change sync settings")
	fmt.Fprintln(os.Stderr, "  calrelay status [--user <id>]         Show config state & recent runs")
	fmt.Fprintln(os.Stderr, "  calrelay version                      Print version")
	fmt.Fprintln(os.Stderr, "")

	if cfgErr != nil {
		fmt.Fprintln(os.Stderr, "No config file found. Create", cfgPath, "first.")
	}

	os.Exit(1)
	return nil // unreachable
}

// configFlag registers the shared --config flag on a FlagSet.
func configFlag(fs *flag.FlagSet) *string {
	defaultCfg, _ := config.DefaultPath()
	return fs.String("config", defaultCfg, "path to config.yaml")
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// --- Subcommands -------------------------------------------------------------

// runAuth walks the user through the OAuth desktop flow and caches the token.
func runAuth(args []string) error {
	fs := flag.NewFlagSet("auth", flag.ExitOnError)
	cfgPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	oauthCfg := google.OAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret)
	fmt.Println("Open the following URL in your browser and authorize calrelay:")
	fmt.Println()
	fmt.Println("  " + oauthCfg.AuthCodeURL("state-token"))
	fmt.Println()
	fmt.Print("Paste the authorization code here: ")

	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("no authorization code entered")
	}

	token, err := google.Exchange(ctx, oauthCfg, code)
	if err != nil {
		return err
	}
	if err := google.SaveToken(cfg.Google.TokenFile, token); err != nil {
		return err
	}

	fmt.Println("✓ Token saved to", cfg.Google.TokenFile)
	return nil
}

// runDaemon starts the polling engine and blocks until interrupted.
func runDaemon(args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	cfgPath := configFlag(fs)
	verbose := fs.Bool("verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger := newLogger(*verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	app, err := buildApp(ctx, *cfgPath, logger)
	if err != nil {
		return err
	}
	defer app.close(logger)

	engine := syncp.NewEngine(app.orch, app.cfg.Users, app.cfg.EngineTick, logger)
	logger.Info("engine starting",
		"users", len(app.cfg.Users),
		"tick", app.cfg.EngineTick,
		"calendar", app.cfg.Google.CalendarID,
	)
	if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// runSyncOnce performs one full sync for a single user and reports counters.
func runSyncOnce(args []string) error {
	fs := flag.NewFlagSet("sync-once", flag.ExitOnError)
	cfgPath := configFlag(fs)
	userID := fs.String("user", "", "user identifier")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return fmt.Errorf("--user is required")
	}
	logger := newLogger(*verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	app, err := buildApp(ctx, *cfgPath, logger)
	if err != nil {
		return err
	}
	defer app.close(logger)

	res, err := app.orch.PerformFullSync(ctx, *userID)
	if err != nil {
		return err
	}
	printResult(res)
	if !res.Success {
		os.Exit(1)
	}
	return nil
}

// runSyncEvent pushes a single local event to the provider immediately.
func runSyncEvent(args []string) error {
	fs := flag.NewFlagSet("sync-event", flag.ExitOnError)
	cfgPath := configFlag(fs)
	userID := fs.String("user", "", "user identifier")
	eventID := fs.String("event", "", "local event identifier")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" || *eventID == "" {
		return fmt.Errorf("--user and --event are required")
	}
	logger := newLogger(false)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	app, err := buildApp(ctx, *cfgPath, logger)
	if err != nil {
		return err
	}
	defer app.close(logger)

	res, err := app.orch.SyncSingleEvent(ctx, *userID, *eventID)
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

// runConflicts lists the user's pending conflicts.
func runConflicts(args []string) error {
	fs := flag.NewFlagSet("conflicts", flag.ExitOnError)
	cfgPath := configFlag(fs)
	userID := fs.String("user", "", "user identifier")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return fmt.Errorf("--user is required")
	}
	logger := newLogger(false)

	ctx := context.Background()
	st, err := openStore(*cfgPath)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	conflicts, err := st.ListPendingConflicts(ctx, *userID)
	if err != nil {
		return err
	}
	if len(conflicts) == 0 {
		fmt.Println("No pending conflicts.")
		return nil
	}

	for _, c := range conflicts {
		fmt.Printf("%s  [%s]  detected %s\n", c.ID, c.Type, c.DetectedAt.Format(time.RFC3339))
		fmt.Printf("    local:  %s (modified %s)\n", orDash(c.LocalEventID), orDash(fmtTime(c.LocalModifiedAt)))
		fmt.Printf("    remote: %s (modified %s)\n", orDash(c.ExternalEventID), orDash(fmtTime(c.ExternalModifiedAt)))
	}
	fmt.Printf("\n%d pending conflict(s). Resolve with:\n", len(conflicts))
	fmt.Println("  calrelay resolve --user", *userID, "--id <conflict> --choice keep_local|keep_google|merge")
	return nil
}

// runResolve applies a resolution choice to one pending conflict.
func runResolve(args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	cfgPath := configFlag(fs)
	userID := fs.String("user", "", "user identifier")
	conflictID := fs.String("id", "", "conflict identifier")
	choice := fs.String("choice", "", "keep_local, keep_google, or merge")
	resolver := fs.String("resolver", "cli", "who is resolving (recorded in the audit trail)")
	ignore := fs.Bool("ignore", false, "dismiss the conflict without changing either side")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" || *conflictID == "" {
		return fmt.Errorf("--user and --id are required")
	}
	if !*ignore && *choice == "" {
		return fmt.Errorf("--choice is required (or pass --ignore)")
	}
	logger := newLogger(false)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	app, err := buildApp(ctx, *cfgPath, logger)
	if err != nil {
		return err
	}
	defer app.close(logger)

	if *ignore {
		if err := app.orch.IgnoreConflict(ctx, *userID, *conflictID, *resolver); err != nil {
			return err
		}
		fmt.Println("✓ Conflict ignored.")
		return nil
	}

	if err := app.orch.ResolveConflict(ctx, *userID, *conflictID, model.ResolutionChoice(*choice), *resolver); err != nil {
		return err
	}
	fmt.Println("✓ Conflict resolved with", *choice)
	return nil
}

// runPrefs shows or updates a user's sync preferences.
func runPrefs(args []string) error {
	fs := flag.NewFlagSet("prefs", flag.ExitOnError)
	cfgPath := configFlag(fs)
	userID := fs.String("user", "", "user identifier")
	enabled := fs.String("enabled", "", "true or false")
	direction := fs.String("direction", "", "bidirectional, local_to_remote, or remote_to_local")
	interval := fs.Duration("interval", 0, "poll interval, e.g. 15m")
	autoResolve := fs.String("auto-resolve", "", "true or false (last-writer-wins)")
	calendarID := fs.String("calendar", "", "Google calendar id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return fmt.Errorf("--user is required")
	}
	logger := newLogger(false)

	ctx := context.Background()
	st, err := openStore(*cfgPath)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	patch := store.PreferencesPatch{}
	changed := false
	if *enabled != "" {
		v := *enabled == "true"
		patch.Enabled = &v
		changed = true
	}
	if *direction != "" {
		d := model.Direction(*direction)
		patch.Direction = &d
		changed = true
	}
	if *interval != 0 {
		patch.PollInterval = interval
		changed = true
	}
	if *autoResolve != "" {
		v := *autoResolve == "true"
		patch.AutoResolve = &v
		changed = true
	}
	if *calendarID != "" {
		patch.CalendarID = calendarID
		changed = true
	}

	var prefs *store.Preferences
	if changed {
		prefs, err = st.UpdatePreferences(ctx, *userID, patch)
	} else {
		prefs, err = st.GetPreferences(ctx, *userID)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Preferences for %s\n", prefs.UserID)
	fmt.Printf("  Enabled:        %v\n", prefs.Enabled)
	fmt.Printf("  Direction:      %s\n", prefs.Direction)
	fmt.Printf("  Poll interval:  %s\n", prefs.PollInterval)
	fmt.Printf("  Auto-resolve:   %v\n", prefs.AutoResolve)
	fmt.Printf("  Calendar:       %s\n", prefs.CalendarID)
	fmt.Printf("  Last attempt:   %s\n", orDash(fmtTime(prefs.LastAttemptedAt)))
	fmt.Printf("  Last success:   %s\n", orDash(fmtTime(prefs.LastSucceededAt)))
	return nil
}

// runStatus prints the configuration state and, per user, the recent runs.
func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cfgPath := configFlag(fs)
	userID := fs.String("user", "", "limit run history to one user")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger := newLogger(false)

	fmt.Println("Calrelay Status")
	fmt.Println("───────────────")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Printf("  Config:   %s (invalid: %v)\n", *cfgPath, err)
		return nil
	}
	fmt.Printf("  Config:   %s ✓\n", *cfgPath)
	fmt.Printf("  Calendar: %s\n", cfg.Google.CalendarID)
	fmt.Printf("  Users:    %s\n", strings.Join(cfg.Users, ", "))
	fmt.Printf("  Tick:     %s\n", cfg.EngineTick)
	fmt.Printf("  Window:   -%dm .. +%dm\n", cfg.SyncWindow.PastMonths, cfg.SyncWindow.FutureMonths)

	if _, err := os.Stat(cfg.Google.TokenFile); err == nil {
		fmt.Printf("  Token:    %s ✓\n", cfg.Google.TokenFile)
	} else {
		fmt.Printf("  Token:    not found (run 'calrelay auth')\n")
	}

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return err
	}
	info, err := os.Stat(dbPath)
	if err != nil {
		fmt.Printf("  DB:       not found (%s)\n", dbPath)
		return nil
	}
	fmt.Printf("  DB:       %s (%d KiB)\n", dbPath, info.Size()/1024)

	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	users := cfg.Users
	if *userID != "" {
		users = []string{*userID}
	}
	ctx := context.Background()
	for _, u := range users {
		logs, err := st.ListSyncLogs(ctx, u, 5)
		if err != nil {
			return err
		}
		fmt.Printf("\n  Recent runs for %s:\n", u)
		if len(logs) == 0 {
			fmt.Println("    (none)")
			continue
		}
		for _, l := range logs {
			fmt.Printf("    %s  %-9s  %-10s  p=%d c=%d u=%d x=%d  %s\n",
				l.StartedAt.Format("2006-01-02 15:04"), l.Status, l.Operation,
				l.Processed, l.Created, l.Updated, l.Conflicts, l.Duration)
		}
	}
	return nil
}

// --- Wiring --------------------------------------------------------------------

// app bundles the long-lived pieces a provider-backed subcommand needs.
type app struct {
	cfg         *config.Config
	st          *store.Store
	orch        *syncp.Orchestrator
	shutdownTel telemetry.ShutdownFunc
}

// buildApp loads config, opens the store, authenticates the provider, and
// wires the orchestrator. Telemetry is optional and failures there are not
// fatal.
func buildApp(ctx context.Context, cfgPath string, logger *slog.Logger) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config from %q: %w", cfgPath, err)
	}
	logger.Info("config loaded",
		"calendar", cfg.Google.CalendarID,
		"users", len(cfg.Users),
		"tick", cfg.EngineTick,
	)

	a := &app{cfg: cfg, shutdownTel: func(context.Context) error { return nil }}

	if cfg.Telemetry != nil {
		shutdownTel, err := telemetry.Setup(ctx, telemetry.Config{
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure:     cfg.Telemetry.Insecure,
			ServiceName:  cfg.Telemetry.ServiceName,
			Headers:      cfg.Telemetry.Headers,
		})
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
			a.shutdownTel = shutdownTel
		}
	}

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database at %q: %w", dbPath, err)
	}
	a.st = st
	logger.Info("database opened", "path", dbPath)

	client, err := google.NewClient(ctx, logger,
		cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.TokenFile, cfg.Google.CalendarID)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	window := syncp.Window{
		PastMonths:   cfg.SyncWindow.PastMonths,
		FutureMonths: cfg.SyncWindow.FutureMonths,
	}
	a.orch = syncp.NewOrchestrator(st, client, st, loc, window, cfg.MaxResults, logger)
	return a, nil
}

func (a *app) close(logger *slog.Logger) {
	closeStore(a.st, logger)

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdownTel(flushCtx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}
}

// openStore opens the database for store-only subcommands that never talk to
// the provider.
func openStore(cfgPath string) (*store.Store, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config from %q: %w", cfgPath, err)
	}
	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return nil, err
	}
	return store.Open(dbPath)
}

func closeStore(st *store.Store, logger *slog.Logger) {
	if err := st.Close(); err != nil {
		logger.Error("closing database", "error", err)
	}
}

func resolveDBPath(cfg *config.Config) (string, error) {
	if cfg.DBPath != "" {
		return cfg.DBPath, nil
	}
	return store.DefaultDBPath()
}

func printResult(res *syncp.SyncResult) {
	fmt.Printf("success=%v processed=%d created=%d updated=%d deleted=%d conflicts=%d\n",
		res.Success, res.Processed, res.Created, res.Updated, res.Deleted, res.Conflicts)
	for _, e := range res.Errors {
		fmt.Println("  error:", e)
	}
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
