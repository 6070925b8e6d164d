package cmd

import (
	"fmt"
	"strings"

	"drudge/feed"
	"drudge/forum"

	"github.com/cqroot/prompt"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func discussCmd() *cli.Command {
	return &cli.Command{
		Name:      "discuss",
		Usage:     "Resolve the companion link for a headline",
		ArgsUsage: "[headline]",
		Description: `Looks up the forum for a discussion whose title matches the headline
exactly and prints its URL. Prints the composer URL for a new discussion when
no exact match exists or the lookup fails.

Prompts for the headline when it is not given as an argument.`,
		Flags: forumFlags(),
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			title := strings.Join(ctx.Args().Slice(), " ")
			if !ctx.Args().Present() {
				title, err = prompt.New().Ask("Headline:").Input("")
				if err != nil {
					return err
				}
			}

			client := forum.NewClient(cfg.Forum.BaseURL, cfg.Forum.UserAgent, nil)
			resolver := feed.NewResolver(client, cfg.Forum.LookupTimeout.Duration)
			res := resolver.Resolve(ctx.Context, title)

			log.WithFields(log.Fields{
				"title":    title,
				"existing": res.Existing,
			}).Debug("Resolved headline")

			fmt.Println(res.URL)
			return nil
		},
	}
}
