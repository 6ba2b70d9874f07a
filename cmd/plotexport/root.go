package main

import (
	"context"
	"database/sql"
	"io"
	"os"
	"time"

	trackerbun "github.com/goliatone/go-static-export/adapters/tracker/bun"
	"github.com/goliatone/go-static-export/export"
	"github.com/goliatone/go-static-export/exporter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type globalFlags struct {
	verbose       bool
	browser       string
	backend       string
	driverPort    int
	driverURL     string
	driverPath    string
	browserPath   string
	noSpawn       bool
	offline       bool
	bundles       []string
	scriptTimeout time.Duration
	historyDB     string
}

type globalState struct {
	flags     globalFlags
	stdout    io.Writer
	stderr    io.Writer
	lookupEnv func(string) (string, bool)
	logger    *logrus.Logger
}

func newGlobalState() *globalState {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	return &globalState{
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		lookupEnv: os.LookupEnv,
		logger:    logger,
	}
}

func newRootCmd(gs *globalState) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "plotexport",
		Short:         "Render plot documents to static images through a headless browser",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			gs.logger.SetOutput(gs.stderr)
			if gs.flags.verbose {
				gs.logger.SetLevel(logrus.DebugLevel)
			}
		},
	}
	rootCmd.SetOut(gs.stdout)
	rootCmd.SetErr(gs.stderr)

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&gs.flags.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&gs.flags.browser, "browser", "", "browser profile: chrome or firefox")
	flags.StringVar(&gs.flags.backend, "backend", "", "session backend: webdriver or cdp")
	flags.IntVar(&gs.flags.driverPort, "driver-port", 0, "WebDriver port")
	flags.StringVar(&gs.flags.driverURL, "driver-url", "", "WebDriver base URL, overrides --driver-port")
	flags.StringVar(&gs.flags.driverPath, "driver-path", "", "WebDriver executable")
	flags.StringVar(&gs.flags.browserPath, "browser-path", "", "browser executable")
	flags.BoolVar(&gs.flags.noSpawn, "no-spawn", false, "only connect to a running driver")
	flags.BoolVar(&gs.flags.offline, "offline", false, "inline the plotting runtime into the host page")
	flags.StringSliceVar(&gs.flags.bundles, "bundle", nil, "local runtime bundle for --offline, repeatable")
	flags.DurationVar(&gs.flags.scriptTimeout, "script-timeout", 0, "session script timeout")
	flags.StringVar(&gs.flags.historyDB, "history-db", "", "SQLite DSN for render history")

	rootCmd.AddCommand(
		getCmdRender(gs),
		getCmdBatch(gs),
		getCmdHistory(gs),
		getCmdServe(gs),
	)
	return rootCmd
}

// config resolves defaults, then the environment, then flags set on cmd.
func (gs *globalState) config(cmd *cobra.Command) (export.Config, error) {
	cfg, err := export.LoadEnv(export.Defaults(), gs.lookupEnv)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("browser") {
		cfg.Browser = gs.flags.browser
	}
	if flags.Changed("backend") {
		cfg.Backend = gs.flags.backend
	}
	if flags.Changed("driver-port") {
		cfg.DriverPort = gs.flags.driverPort
	}
	if flags.Changed("driver-url") {
		cfg.DriverURL = gs.flags.driverURL
	}
	if flags.Changed("driver-path") {
		cfg.DriverPath = gs.flags.driverPath
	}
	if flags.Changed("browser-path") {
		cfg.BrowserPath = gs.flags.browserPath
	}
	if flags.Changed("no-spawn") {
		cfg.AutoSpawn = !gs.flags.noSpawn
	}
	if flags.Changed("offline") {
		cfg.Offline = gs.flags.offline
	}
	if flags.Changed("bundle") {
		cfg.OfflineBundles = gs.flags.bundles
	}
	if flags.Changed("script-timeout") {
		cfg.ScriptTimeout = gs.flags.scriptTimeout
	}
	return cfg, cfg.Validate()
}

// openTracker returns a SQLite tracker when --history-db is set, otherwise an
// in-memory one.
func (gs *globalState) openTracker(ctx context.Context) (export.Tracker, func(), error) {
	if gs.flags.historyDB == "" {
		return export.NewMemoryTracker(), func() {}, nil
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, gs.flags.historyDB)
	if err != nil {
		return nil, nil, export.NewError(export.KindIO, "open history database", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	tracker := trackerbun.NewTracker(db)
	if err := tracker.CreateSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, export.NewError(export.KindIO, "create history schema", err)
	}
	return tracker, func() {
		if err := db.Close(); err != nil {
			gs.logger.Warnf("close history database: %v", err)
		}
	}, nil
}

// newExporter builds an exporter and its tracker. The returned func releases
// both.
func (gs *globalState) newExporter(cmd *cobra.Command) (*exporter.Exporter, export.Tracker, func(), error) {
	cfg, err := gs.config(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx := cmd.Context()
	tracker, closeTracker, err := gs.openTracker(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	opts := []exporter.Option{
		exporter.WithConfig(cfg),
		exporter.WithLogger(gs.logger.WithField("component", "plotexport")),
		exporter.WithTracker(tracker),
	}
	if gs.flags.verbose {
		opts = append(opts, exporter.WithDriverOutput(gs.stderr))
	}

	exp, err := exporter.NewBuilder(opts...).Build(ctx)
	if err != nil {
		closeTracker()
		return nil, nil, nil, err
	}
	return exp, tracker, func() {
		_ = exp.Close()
		closeTracker()
	}, nil
}
