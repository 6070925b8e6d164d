/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"time"

	"drudge/db"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the snapshot archive",
		Description: `Tidy up the archive by removing snapshots that are old.

		Removes snapshots received earlier than the configured retention,
		30 days by default.`,
		Flags: archiveFlags(),
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			archive, err := db.NewDB(cfg.Archive.Host, cfg.Archive.Port, cfg.Archive.User, cfg.Archive.Password, cfg.Archive.Name)
			if err != nil {
				return err
			}
			defer archive.Close()

			removed, err := archive.Tidy(ctx.Context, time.Now().Add(-cfg.Archive.Retention.Duration))
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"removed": removed,
			}).Info("Tidied archive")
			return nil
		},
	}
}
