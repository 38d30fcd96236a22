package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/mediaout/cmd"
	"github.com/smazurov/mediaout/internal/api"
	"github.com/smazurov/mediaout/internal/config"
	"github.com/smazurov/mediaout/internal/discovery"
	"github.com/smazurov/mediaout/internal/engine"
	"github.com/smazurov/mediaout/internal/logging"
	"github.com/smazurov/mediaout/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Engine settings
	EngineFile     string `help:"Pipelines, encoders and outputs file" default:"outputs.toml" toml:"engine.file" env:"ENGINE_FILE"`
	EngineWatch    bool   `help:"Apply engine file changes while running" default:"true" toml:"engine.watch" env:"ENGINE_WATCH"`
	EngineDebounce string `help:"Wait for engine file writes to settle" default:"500ms" toml:"engine.debounce" env:"ENGINE_DEBOUNCE"`

	// Discovery settings
	DiscoveryEnabled  bool   `help:"Advertise the API over mDNS" default:"false" toml:"discovery.enabled" env:"DISCOVERY_ENABLED"`
	DiscoveryInstance string `help:"mDNS instance name (defaults to the host name)" default:"" toml:"discovery.instance" env:"DISCOVERY_INSTANCE"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingOutput   string `help:"Output logging level" default:"info" toml:"logging.output" env:"LOGGING_OUTPUT"`
	LoggingEncoder  string `help:"Encoder logging level" default:"info" toml:"logging.encoder" env:"LOGGING_ENCODER"`
	LoggingPipeline string `help:"Pipeline logging level" default:"info" toml:"logging.pipeline" env:"LOGGING_PIPELINE"`
	LoggingSinks    string `help:"Sinks logging level" default:"info" toml:"logging.sinks" env:"LOGGING_SINKS"`
	LoggingEngine   string `help:"Engine logging level" default:"info" toml:"logging.engine" env:"LOGGING_ENGINE"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP     string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
	LoggingConfig   string `help:"Config logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"output":   opts.LoggingOutput,
				"encoder":  opts.LoggingEncoder,
				"pipeline": opts.LoggingPipeline,
				"sinks":    opts.LoggingSinks,
				"engine":   opts.LoggingEngine,
				"api":      opts.LoggingAPI,
				"http":     opts.LoggingHTTP,
				"config":   opts.LoggingConfig,
			},
		})
		logger := logging.GetLogger("main")

		types, err := engine.DefaultTypes()
		if err != nil {
			logger.Error("Failed to register output types", "error", err)
			os.Exit(1)
		}

		store := config.NewEngineStore(opts.EngineFile)
		engineCfg, err := store.Load()
		if err != nil {
			logger.Error("Failed to load engine file", "path", opts.EngineFile, "error", err)
			os.Exit(1)
		}

		eng, err := engine.New(types, engineCfg)
		if err != nil {
			logger.Error("Failed to build engine", "error", err)
			os.Exit(1)
		}
		stopLogs := api.ForwardLogs(eng.Manager().Events())

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Engine:            eng,
			PrometheusHandler: promhttp.Handler(),
			OnSettingsChanged: store.SetOutputSettings,
		})

		var watcher *config.Watcher[*config.EngineConfig]
		if opts.EngineWatch {
			debounce, parseErr := time.ParseDuration(opts.EngineDebounce)
			if parseErr != nil {
				logger.Warn("Invalid engine debounce, using default", "value", opts.EngineDebounce, "error", parseErr)
				debounce = config.DefaultDebounce
			}
			watcher = config.NewConfigWatcher(
				store.Path(),
				func(string) (*config.EngineConfig, error) { return store.Load() },
				logging.GetLogger("config"),
				config.WithDebounce[*config.EngineConfig](debounce),
			)
			watcher.OnReload(func(cfg *config.EngineConfig) {
				if applyErr := eng.Apply(cfg); applyErr != nil {
					logger.Warn("Engine file applied with errors", "error", applyErr)
					return
				}
				logger.Info("Engine file applied", "outputs", len(cfg.Outputs), "encoders", len(cfg.Encoders))
			})
		}

		var advertiser *discovery.Advertiser

		hooks.OnStart(func() {
			eng.Start(context.Background())

			if opts.DiscoveryEnabled {
				port, portErr := discovery.ParsePort(opts.Port)
				if portErr == nil {
					advertiser, portErr = discovery.Advertise(discovery.Config{
						Instance: opts.DiscoveryInstance,
						Port:     port,
						Version:  version.String(),
					})
				}
				if portErr != nil {
					logger.Warn("mDNS advertisement disabled", "error", portErr)
				}
			}

			if watcher != nil {
				if startErr := watcher.Start(); startErr != nil {
					logger.Warn("Failed to watch engine file", "path", store.Path(), "error", startErr)
				}
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			sdNotify(logger, daemon.SdNotifyReady)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			sdNotify(logger, daemon.SdNotifyStopping)
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping config watcher", "error", stopErr)
				}
			}
			if stopErr := advertiser.Shutdown(); stopErr != nil {
				logger.Warn("Error stopping mDNS advertisement", "error", stopErr)
			}
			stopLogs()
			// Stops outputs before their encoders go away.
			eng.Close()
		})
	})

	cli.Root().Use = "mediaout"
	cli.Root().Short = "Output management core for an A/V engine"

	cli.Root().AddCommand(cmd.CreateTypesCmd())
	cli.Root().AddCommand(cmd.CreateSimulateCmd())

	cli.Run()
}

// sdNotify reports service state to systemd. Outside a Type=notify unit it
// does nothing.
func sdNotify(logger *slog.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logger.Warn("systemd notify failed", "state", state, "error", err)
		return
	}
	if sent {
		logger.Debug("systemd notified", "state", state)
	}
}
