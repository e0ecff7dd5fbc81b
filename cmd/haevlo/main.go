// Command haevlo is a recording client: it connects to a Home Assistant
// WebSocket endpoint (real or the hast surrogate), watches state_changed
// events that pass an entity filter, and appends them as a YAML scenario
// log that hast can later replay.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/nugget/hass/internal/appconfig"
	"github.com/nugget/hass/internal/applog"
	"github.com/nugget/hass/internal/buildinfo"
	"github.com/nugget/hass/internal/entityfilter"
	"github.com/nugget/hass/internal/shutdown"
	"github.com/nugget/hass/internal/wsclient"
	"github.com/nugget/hass/internal/wsmsg"
	"github.com/nugget/hass/internal/yamllog"
)

// Exit codes mirror original_source/hass/src/bin/haevlo.rs's ExitCode
// enum, the abstract "exit-code contract" spec.md §6 names but leaves to
// the binary.
const (
	exitSuccess                = 0
	exitConnectionError        = 1
	exitControlSubscriptionErr = 2
	exitStateSubscriptionErr   = 3
	exitOpenFileError          = 4
)

// CLI is the kong-parsed command line. Flags carry no `default` tags —
// a config file value should win over a hardcoded fallback, and a CLI
// flag should win over both — so every field starts zero and
// appconfig.Merge/ApplyHaevloDefaults resolve precedence afterward.
type CLI struct {
	Version      kong.VersionFlag `help:"Print version and exit"`
	Host         string           `help:"Home Assistant host (default 127.0.0.1)"`
	Port         int              `help:"Home Assistant WebSocket port (default 8123)"`
	Token        string           `help:"Long-lived access token (default letmein)"`
	OutputFolder string           `help:"Directory to write recorded YAML logs (default .)" name:"output-folder"`
	Entity       []string         `help:"Glob pattern for entity ids to record, repeatable (default: all)" name:"entity"`
	UseEvents    bool             `help:"Start/stop recording remotely via haevlo_start/haevlo_stop events" name:"use-events"`
	Config       string           `help:"Config file path" short:"c" type:"path"`
	LogLevel     string           `help:"Log level: trace, debug, info, warn, error (default info)" name:"log-level"`

	TestName string `arg:"" help:"Base name for recorded output files"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("haevlo"),
		kong.Description("Records Home Assistant state_changed events to a YAML scenario log"),
		kong.UsageOnError(),
		kong.Vars{"version": buildinfo.String()},
	)

	os.Exit(run(cli))
}

func run(cli CLI) int {
	path, err := appconfig.FindConfig(cli.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConnectionError
	}
	fileCfg, err := appconfig.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConnectionError
	}

	if err := appconfig.Merge(&fileCfg.Haevlo, appconfig.HaevloFileConfig{
		Host:         cli.Host,
		Port:         cli.Port,
		Token:        cli.Token,
		OutputFolder: cli.OutputFolder,
		Entities:     cli.Entity,
	}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConnectionError
	}
	appconfig.ApplyHaevloDefaults(&fileCfg.Haevlo)
	cfg := fileCfg.Haevlo

	logLevel := cli.LogLevel
	if logLevel == "" {
		logLevel = fileCfg.LogLevel
	}
	level, err := applog.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConnectionError
	}
	logger := applog.New(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("signal received, shutting down")
		cancel()
	}()

	mgr := shutdown.NewManager()

	api, err := wsclient.Connect(ctx, wsclient.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		Token:  cfg.Token,
		Logger: logger,
	}, mgr)
	if err != nil {
		logger.Error("could not connect to HA WebSocket", "err", err)
		return exitConnectionError
	}
	defer api.Close()

	var ctrlStream *wsclient.EventStream
	if cli.UseEvents {
		ctrlStream, err = api.SubscribeEvents(ctx, []wsmsg.EventType{wsmsg.EventHaevloStart, wsmsg.EventHaevloStop})
		if err != nil {
			logger.Error("could not subscribe to haevlo_start/haevlo_stop", "err", err)
			return exitControlSubscriptionErr
		}
		defer ctrlStream.Close()
	}

	stateStream, err := api.SubscribeEvent(ctx, wsmsg.EventStateChanged)
	if err != nil {
		logger.Error("could not subscribe to state_changed", "err", err)
		return exitStateSubscriptionErr
	}
	defer stateStream.Close()

	filter := entityfilter.New(cfg.Entities, logger)

	rec := &recorder{
		outputFolder: cfg.OutputFolder,
		testName:     cli.TestName,
		logger:       logger,
	}

	recording := !cli.UseEvents
	if recording {
		if err := rec.open(0); err != nil {
			logger.Error("open output file", "err", err)
			return exitOpenFileError
		}
	}
	defer rec.close()

	type event struct {
		ctrl bool
		msg  wsmsg.Message
	}
	results := make(chan event, 16)
	quit := make(chan struct{})
	defer close(quit)

	forward := func(s *wsclient.EventStream, ctrl bool) {
		for {
			msg, ok, err := s.Next(context.Background())
			if err != nil || !ok {
				return
			}
			select {
			case results <- event{ctrl: ctrl, msg: msg}:
			case <-quit:
				return
			}
		}
	}
	if cli.UseEvents {
		go forward(ctrlStream, true)
	}
	go forward(stateStream, false)

	index := 0
	for {
		select {
		case <-ctx.Done():
			mgr.Shutdown()
			return exitSuccess

		case ev := <-results:
			if ev.ctrl {
				switch ev.msg.Event.EventType {
				case wsmsg.EventHaevloStart:
					index++
					if err := rec.open(index); err != nil {
						logger.Error("open output file", "err", err)
						return exitOpenFileError
					}
					recording = true
					logger.Info("haevlo_start event: started logging", "index", index)
				case wsmsg.EventHaevloStop:
					recording = false
					logger.Info("haevlo_stop event: stopped logging", "index", index)
				}
				continue
			}

			if !recording {
				continue
			}
			if !filter.Match(stateChangedEntityID(ev.msg)) {
				continue
			}
			if err := rec.write(ev.msg); err != nil {
				logger.Error("append event to output file", "err", err)
			}
		}
	}
}

// stateChangedEntityID pulls entity_id out of a state_changed event's
// opaque data payload; a malformed or unexpected shape just fails the
// filter match rather than aborting recording.
func stateChangedEntityID(msg wsmsg.Message) string {
	if msg.Event == nil {
		return ""
	}
	var data struct {
		EntityID string `json:"entity_id"`
	}
	if err := json.Unmarshal(msg.Event.Data, &data); err != nil {
		return ""
	}
	return data.EntityID
}

// recorder owns the currently open output file, named
// <output_folder>/<test_name>-<index>.yaml, rotating to a new index on
// open.
type recorder struct {
	outputFolder string
	testName     string
	logger       *slog.Logger

	file   *os.File
	writer *yamllog.Writer
}

func (r *recorder) open(index int) error {
	r.close()

	name := filepath.Join(r.outputFolder, fmt.Sprintf("%s-%d.yaml", r.testName, index))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	r.logger.Info("opened output file", "path", name)
	r.file = f
	r.writer = yamllog.NewWriter(f)
	return nil
}

func (r *recorder) write(msg wsmsg.Message) error {
	if r.writer == nil {
		return nil
	}
	return r.writer.Write(msg)
}

func (r *recorder) close() {
	if r.file != nil {
		r.file.Close()
		r.file = nil
		r.writer = nil
	}
}
