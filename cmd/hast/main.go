// Command hast is a mock Home Assistant WebSocket server: a stand-in for
// end-to-end tests that replays recorded event logs in a burst rather
// than a real HA instance's live event stream.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/nugget/hass/internal/appconfig"
	"github.com/nugget/hass/internal/applog"
	"github.com/nugget/hass/internal/buildinfo"
	"github.com/nugget/hass/internal/hast"
	"github.com/nugget/hass/internal/shutdown"
)

// haVersion is reported in auth_required/auth_ok unless the config file
// sets ha_version; the original Rust binary has no equivalent flag, so
// there is no CLI flag for it either.
const haVersion = "2024.1.0"

// CLI is the kong-parsed command line. As in cmd/haevlo, flags carry no
// `default` tags so a config file value isn't silently clobbered by a
// hardcoded fallback — ApplyHastDefaults supplies those once CLI and
// file config are merged.
type CLI struct {
	Version  kong.VersionFlag `help:"Print version and exit"`
	Port     int              `help:"Port used to expose the mock HA WebSocket service (default 8123)"`
	Token    string           `help:"Authentication token required by the mock service (default letmein)"`
	YAMLDir  string           `help:"Base directory where YAML event log files are stored (default .)" name:"yaml-dir"`
	Config   string           `help:"Config file path" short:"c" type:"path"`
	LogLevel string           `help:"Log level: trace, debug, info, warn, error (default info)" name:"log-level"`

	// YAMLScenario, if given, fixes the connection's scenario file and
	// skips the pre-session setup phase entirely, per §4.E.
	YAMLScenario string `arg:"" optional:"" help:"Filename of the YAML event log to run; omit to use the interactive setup phase"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("hast"),
		kong.Description("Home Assistant Surrogate Tool: a mock HA WebSocket server for end-to-end testing"),
		kong.UsageOnError(),
		kong.Vars{"version": buildinfo.String()},
	)

	os.Exit(run(cli))
}

func run(cli CLI) int {
	path, err := appconfig.FindConfig(cli.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fileCfg, err := appconfig.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if err := appconfig.Merge(&fileCfg.Hast, appconfig.HastFileConfig{
		Port:    cli.Port,
		Token:   cli.Token,
		YAMLDir: cli.YAMLDir,
	}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	appconfig.ApplyHastDefaults(&fileCfg.Hast)
	if fileCfg.Hast.HAVersion == "" {
		fileCfg.Hast.HAVersion = haVersion
	}

	logLevel := cli.LogLevel
	if logLevel == "" {
		logLevel = fileCfg.LogLevel
	}
	level, err := applog.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := applog.New(level)

	cfg := hast.Config{
		Port:      fileCfg.Hast.Port,
		Token:     fileCfg.Hast.Token,
		HAVersion: fileCfg.Hast.HAVersion,
		YAMLDir:   fileCfg.Hast.YAMLDir,
	}
	if cli.YAMLScenario != "" {
		cfg.Scenario = cli.YAMLScenario
	}

	mgr := shutdown.NewManager()
	server := hast.NewServer(cfg, mgr, logger)
	if err := server.Listen(); err != nil {
		logger.Error("listen", "err", err)
		return 1
	}
	logger.Info("hast listening", "addr", server.Addr(), "scenario", cfg.Scenario)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("signal received, shutting down")
		mgr.Shutdown()
	}()

	if err := server.Run(context.Background()); err != nil {
		logger.Error("hast terminated with error", "err", err)
		return 1
	}

	// Run returns as soon as the signal fires; wait for every connection
	// task to release its subscriber as well.
	mgr.Shutdown()
	logger.Info("all tasks terminated, quitting")
	return 0
}
