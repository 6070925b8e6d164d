/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"drudge/models"
	"drudge/push"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func subscribeCmd() *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "Print every display list to the command line",
		Description: `Subscribe to the push service and print every ordered display list
to the command line.

Returns each list as a JSON object on a single line. Use a tool like jq to process
the output. Pass --raw to print the accepted snapshots as received instead.

Prints all other log messages to stderr.`,
		Flags: append(append(append(
			pushFlags(),
			forumFlags()...),
			pipelineFlags()...),
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "Print accepted snapshots instead of display lists",
			},
		),
		Action: func(ctx *cli.Context) error {
			// Disable logging to stdout
			log.SetOutput(os.Stderr)

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, pipeline := newPipeline(runCtx, cfg)
			if ctx.Bool("raw") {
				store.OnReplace(func(snap models.Snapshot) { printStdout(snap) })
			} else {
				pipeline.OnPublish(func(list models.DisplayList) { printStdout(list) })
			}

			err = push.Subscribe(runCtx, pushConfig(cfg), store)
			pipeline.Wait()
			return err
		},
	}
}

// printStdout writes v as a single JSON line
func printStdout(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Errorf("Error encoding output: %v", err)
		return
	}
	fmt.Println(string(data))
}
