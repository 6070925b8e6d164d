/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"drudge/db"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Run archive database migrations",
		Description: `Runs database migrations on the configured snapshot archive.`,
		Flags:       archiveFlags(),
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"host": cfg.Archive.Host,
				"port": cfg.Archive.Port,
				"name": cfg.Archive.Name,
			}).Info("Database configured")
			return db.Migrate(cfg.Archive.Host, cfg.Archive.Port, cfg.Archive.User, cfg.Archive.Password, cfg.Archive.Name)
		},
	}
}

func rollbackCmd() *cli.Command {
	return &cli.Command{
		Name:        "rollback",
		Usage:       "Rollback archive database migration",
		Description: `Rolls back the last database migration`,
		Flags:       archiveFlags(),
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"host": cfg.Archive.Host,
				"port": cfg.Archive.Port,
				"name": cfg.Archive.Name,
			}).Info("Database configured")
			return db.Rollback(cfg.Archive.Host, cfg.Archive.Port, cfg.Archive.User, cfg.Archive.Password, cfg.Archive.Name)
		},
	}
}
