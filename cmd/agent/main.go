package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Consult/internal/adapters/devices"
	"github.com/dkeye/Consult/internal/cli"
	"github.com/dkeye/Consult/internal/config"
	"github.com/dkeye/Consult/internal/core"
)

func main() {
	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	deps := cli.NewDependencies(cfg, func() (core.Devices, error) {
		d, err := devices.New(cfg.Media)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
	if err := cli.NewRootCmd(deps).Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
