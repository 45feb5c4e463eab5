package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ju4n97/estimator/internal/config"
	"github.com/ju4n97/estimator/internal/envvar"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "estimator",
		Usage:   "Serve power estimates from trained models over a unix socket",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: config.DefaultConfigFile(),
				Usage: "Path to config file",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:    "socket",
				Usage:   "Unix socket to listen on",
				EnvVars: []string{envvar.EstimatorSocket},
			},
			&cli.StringFlag{
				Name:    "download-path",
				Usage:   "Directory model artifacts are kept in",
				EnvVars: []string{envvar.EstimatorDownloadPath},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
