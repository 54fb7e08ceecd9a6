package main

import (
	"os"

	"github.com/andresuchdata/autopo-servicelevel/internal/config"
	"github.com/andresuchdata/autopo-servicelevel/pkg/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	if err := newApp(cfg, os.Stdout).Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("tuner failed")
	}
}
