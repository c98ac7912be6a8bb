package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/atommanctl/internal/config"
	"codeberg.org/mutker/atommanctl/internal/errors"
	"codeberg.org/mutker/atommanctl/internal/gpu"
	"codeberg.org/mutker/atommanctl/internal/logger"
	"codeberg.org/mutker/atommanctl/internal/metrics"
	"codeberg.org/mutker/atommanctl/internal/panel"
	"codeberg.org/mutker/atommanctl/internal/pid"
	"codeberg.org/mutker/atommanctl/internal/sensors"
	"codeberg.org/mutker/atommanctl/internal/transport"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	pidFile := pid.Default()
	if err := pidFile.Write(); err != nil {
		logger.Fatal().Err(err).Str("path", pidFile.Path()).Msg("failed to write PID file")
	}
	defer removePID(pidFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx); err != nil {
		removePID(pidFile)
		logger.Fatal().Err(err).Msg("panel connection failed")
	}

	logger.Info().Msg("Exiting...")
}

func run(ctx context.Context) error {
	clock := clockwork.NewRealClock()

	history, err := metrics.NewService(metrics.Config{
		DBPath:       cfg.MetricsDB,
		BatchSize:    metrics.DefaultConfig().BatchSize,
		BatchTimeout: metrics.DefaultConfig().BatchTimeout,
		Enabled:      cfg.Metrics,
	}, logger.Default(), clock)
	if err != nil {
		logger.Warn().Err(err).Msg("Reply history unavailable, continuing without it")
		history = metrics.Noop()
	}
	defer func() {
		if err := history.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close reply history")
		}
	}()

	var reader gpu.Reader
	if nvml, err := gpu.Open(); err != nil {
		logger.Debug().Err(err).Msg("NVML unavailable, using command line tools for GPU data")
	} else {
		reader = nvml
		defer func() {
			if err := nvml.Shutdown(); err != nil {
				logger.Debug().Err(err).Msg("failed to shut down NVML")
			}
		}()
	}

	hub := sensors.NewHub(afero.NewOsFs(), sensors.NewCommandRunner(), reader, clock, sensors.HubConfig{
		FanPrefer: cfg.FanPrefer,
		FanMaxRPM: cfg.FanMaxRPM,
		NetIface:  cfg.NetIface,
	})

	logger.Info().
		Str("port", cfg.Port).
		Int("baud", cfg.Baud).
		Dur("start_delay", cfg.StartDelay).
		Str("fan_prefer", cfg.FanPrefer).
		Int("fan_max_rpm", cfg.FanMaxRPM).
		Msg("Starting AtomMan panel driver")

	// USB CDC and sensor drivers need time to settle after boot
	select {
	case <-ctx.Done():
		return nil
	case <-clock.After(cfg.StartDelay):
	}

	link, err := transport.Open(transport.Config{
		Port:        cfg.Port,
		Baud:        cfg.Baud,
		RTSCTS:      cfg.RTSCTS,
		DSRDTR:      cfg.DSRDTR,
		ReadTimeout: cfg.ReadTimeout,
		WriteSleep:  cfg.WriteSleep,
	}, nil)
	if err != nil {
		return err
	}
	defer link.Close()

	engine := panel.New(link, hub, clock, history, panel.Config{
		Attempts: cfg.Attempts,
		Window:   cfg.Window,
	})

	result, err := engine.Activate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if result.State == panel.StateActivated {
		logger.Info().Int("attempts", result.Attempts).Msg("Screen activated, switching to steady state")
	} else {
		logger.Warn().
			Int("attempts", result.Attempts).
			Msg("Screen might not be fully activated; continuing anyway")
	}

	return engine.Run(ctx)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func removePID(f *pid.File) {
	if err := f.Remove(); err != nil {
		logger.Error().Err(err).Msg("failed to remove PID file")
	}
}
