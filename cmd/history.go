package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"drudge/db"
	"drudge/feed"
	"drudge/models"

	"github.com/cqroot/prompt"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
)

func historyCmd() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Browse archived snapshots",
		Description: `Lists the most recent archived snapshots. With --show, prompts for one
snapshot and prints its entries in display order.`,
		Flags: append(archiveFlags(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Number of snapshots to list",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:  "show",
				Usage: "Pick a snapshot and print its entries",
			},
		),
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

			snapshots, err := archive.ListSnapshots(ctx.Context, ctx.Int("limit"))
			if err != nil {
				return err
			}
			if len(snapshots) == 0 {
				fmt.Println("No archived snapshots")
				return nil
			}

			choices := lo.Map(snapshots, func(s models.ArchivedSnapshot, _ int) string {
				return fmt.Sprintf("%d  v%d  %-16s %3d entries  %s",
					s.Id, s.Version, s.Kind, s.EntryCount, s.ReceivedAt.Format(time.RFC3339))
			})

			if !ctx.Bool("show") {
				for _, choice := range choices {
					fmt.Println(choice)
				}
				return nil
			}

			choice, err := prompt.New().Ask("Snapshot:").Choose(choices)
			if err != nil {
				return err
			}
			id, err := strconv.ParseInt(strings.Fields(choice)[0], 10, 64)
			if err != nil {
				return err
			}

			entries, err := archive.SnapshotEntries(ctx.Context, id)
			if err != nil {
				return err
			}
			for _, entry := range feed.Order(entries) {
				fmt.Printf("%-10s %s\n", entry.PageLocation, feed.LinkText(entry.Link))
			}
			return nil
		},
	}
}
