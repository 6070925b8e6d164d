/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"drudge/config"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "drudge",
		Usage: "A live news feed relay with forum discussion links",
		Description: `Drudge subscribes to a push service that delivers the complete list of
		aggregated news entries, orders the entries by page zone and pairs each
		one with a link to a matching forum discussion, or to the forum composer
		when no discussion exists yet.

		Configuration is read from a TOML file, by default
		$XDG_CONFIG_HOME/drudge/config.toml. Flags can generally be set via
		environment variables, e.g.:

		--forum-url => DRUDGE_FORUM_URL=https://trippy.wtf/forum
		--port => DRUDGE_PORT=3000
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML configuration file",
				EnvVars: []string{"DRUDGE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (trace, debug, info, warn, error)",
				EnvVars: []string{"DRUDGE_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text or json)",
				EnvVars: []string{"DRUDGE_LOG_FORMAT"},
			},
		},
		Before: func(ctx *cli.Context) error {
			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return err
			}
			if ctx.IsSet("log-level") {
				cfg.Log.Level = ctx.String("log-level")
			}
			if ctx.IsSet("log-format") {
				cfg.Log.Format = ctx.String("log-format")
			}
			if err := setupLogging(cfg.Log); err != nil {
				return err
			}
			ctx.App.Metadata = map[string]interface{}{"config": cfg}
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(),
			subscribeCmd(),
			discussCmd(),
			migrateCmd(),
			rollbackCmd(),
			tidyCmd(),
			historyCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLogging(cfg config.TomlLog) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", cfg.Format)
	}
	return nil
}
