package cmd

import (
	"fmt"

	"drudge/config"

	"github.com/urfave/cli/v2"
)

func pushFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "push-endpoint",
			Usage:   "Push service endpoint, repeat for failover",
			EnvVars: []string{"DRUDGE_PUSH_ENDPOINTS"},
		},
	}
}

func forumFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "forum-url",
			Usage:   "Forum base URL",
			EnvVars: []string{"DRUDGE_FORUM_URL"},
		},
		&cli.DurationFlag{
			Name:    "lookup-timeout",
			Usage:   "Timeout for a single discussion lookup",
			EnvVars: []string{"DRUDGE_LOOKUP_TIMEOUT"},
		},
	}
}

func pipelineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "eager-lookup",
			Usage:   "Resolve companion links for every entry when a snapshot arrives",
			EnvVars: []string{"DRUDGE_EAGER_LOOKUP"},
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "Concurrent lookups in eager mode",
			EnvVars: []string{"DRUDGE_WORKERS"},
		},
	}
}

func serverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Usage:   "Host to listen on",
			EnvVars: []string{"DRUDGE_HOST"},
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to listen on",
			EnvVars: []string{"DRUDGE_PORT"},
		},
	}
}

func archiveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "archive",
			Usage:   "Archive accepted snapshots in PostgreSQL",
			EnvVars: []string{"DRUDGE_ARCHIVE"},
		},
		&cli.StringFlag{
			Name:    "db-host",
			Usage:   "PostgreSQL host",
			EnvVars: []string{"DRUDGE_DB_HOST"},
		},
		&cli.IntFlag{
			Name:    "db-port",
			Usage:   "PostgreSQL port",
			EnvVars: []string{"DRUDGE_DB_PORT"},
		},
		&cli.StringFlag{
			Name:    "db-user",
			Usage:   "PostgreSQL user",
			EnvVars: []string{"DRUDGE_DB_USER"},
		},
		&cli.StringFlag{
			Name:    "db-password",
			Usage:   "PostgreSQL password",
			EnvVars: []string{"DRUDGE_DB_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "db-name",
			Usage:   "PostgreSQL database name",
			EnvVars: []string{"DRUDGE_DB_NAME"},
		},
		&cli.DurationFlag{
			Name:    "retention",
			Usage:   "How long archived snapshots are kept",
			EnvVars: []string{"DRUDGE_RETENTION"},
		},
	}
}

// loadConfig returns the file configuration with every explicitly set flag
// applied on top, validated
func loadConfig(ctx *cli.Context) (*config.TomlConfig, error) {
	cfg, ok := ctx.App.Metadata["config"].(*config.TomlConfig)
	if !ok {
		cfg = config.Defaults()
	}

	if ctx.IsSet("push-endpoint") {
		cfg.Push.Endpoints = ctx.StringSlice("push-endpoint")
	}
	if ctx.IsSet("forum-url") {
		cfg.Forum.BaseURL = ctx.String("forum-url")
	}
	if ctx.IsSet("lookup-timeout") {
		cfg.Forum.LookupTimeout.Duration = ctx.Duration("lookup-timeout")
	}
	if ctx.IsSet("eager-lookup") {
		cfg.Pipeline.EagerLookup = ctx.Bool("eager-lookup")
	}
	if ctx.IsSet("workers") {
		cfg.Pipeline.Workers = ctx.Int("workers")
	}
	if ctx.IsSet("host") {
		cfg.Server.Host = ctx.String("host")
	}
	if ctx.IsSet("port") {
		cfg.Server.Port = ctx.Int("port")
	}
	if ctx.IsSet("archive") {
		cfg.Archive.Enabled = ctx.Bool("archive")
	}
	if ctx.IsSet("db-host") {
		cfg.Archive.Host = ctx.String("db-host")
	}
	if ctx.IsSet("db-port") {
		cfg.Archive.Port = ctx.Int("db-port")
	}
	if ctx.IsSet("db-user") {
		cfg.Archive.User = ctx.String("db-user")
	}
	if ctx.IsSet("db-password") {
		cfg.Archive.Password = ctx.String("db-password")
	}
	if ctx.IsSet("db-name") {
		cfg.Archive.Name = ctx.String("db-name")
	}
	if ctx.IsSet("retention") {
		cfg.Archive.Retention.Duration = ctx.Duration("retention")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
