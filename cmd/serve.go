package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"drudge/config"
	"drudge/db"
	"drudge/feed"
	"drudge/forum"
	"drudge/push"
	"drudge/server"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// newPipeline wires the store into the ordering and enrichment pipeline
func newPipeline(ctx context.Context, cfg *config.TomlConfig) (*feed.Store, *feed.Pipeline) {
	client := forum.NewClient(cfg.Forum.BaseURL, cfg.Forum.UserAgent, nil)
	resolver := feed.NewResolver(client, cfg.Forum.LookupTimeout.Duration)
	pipeline := feed.NewPipeline(ctx, resolver, feed.PipelineConfig{
		EagerLookup: cfg.Pipeline.EagerLookup,
		Workers:     cfg.Pipeline.Workers,
	})

	store := feed.NewStore()
	store.OnReplace(pipeline.Submit)
	return store, pipeline
}

func pushConfig(cfg *config.TomlConfig) push.Config {
	return push.Config{
		Endpoints:  cfg.Push.Endpoints,
		Namespace:  cfg.Push.Namespace,
		UserAgent:  cfg.Forum.UserAgent,
		MaxBackoff: cfg.Push.MaxBackoff.Duration,
	}
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the live news feed",
		Description: `Starts the HTTP server and the push service subscriber.

Every snapshot received from the push service replaces the current entries.
The ordered display list is available at /api/documents and streamed to
browsers over server-sent events at /api/documents/sse. Companion links
resolve through /discuss?title=..., which looks up the forum at click time.`,
		Flags: append(append(append(append(
			pushFlags(),
			forumFlags()...),
			pipelineFlags()...),
			serverFlags()...),
			archiveFlags()...),
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, pipeline := newPipeline(runCtx, cfg)
			bc := server.NewBroadcaster()
			pipeline.OnPublish(bc.Broadcast)
			status := push.NewStatus()

			var wg sync.WaitGroup

			if cfg.Archive.Enabled {
				archive, err := db.NewDB(cfg.Archive.Host, cfg.Archive.Port, cfg.Archive.User, cfg.Archive.Password, cfg.Archive.Name)
				if err != nil {
					return err
				}
				defer archive.Close()

				writer := db.NewWriter(archive, cfg.Archive.Retention.Duration)
				store.OnReplace(writer.Enqueue)
				wg.Add(1)
				go func() {
					defer wg.Done()
					writer.Subscribe(runCtx)
				}()
			}

			app := server.Server(&server.ServerConfig{
				Feed:         pipeline,
				Broadcaster:  bc,
				AllowOrigins: cfg.Server.AllowOrigins,
				Push:         status,
			})

			wg.Add(1)
			go func() {
				defer wg.Done()
				pc := pushConfig(cfg)
				pc.Status = status
				if err := push.Subscribe(runCtx, pc, store); err != nil {
					log.WithFields(log.Fields{
						"error": err,
					}).Error("Push subscription failed")
					stop()
				}
			}()

			go func() {
				<-runCtx.Done()
				log.Info("Gracefully shutting down...")
				bc.Shutdown()
				if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
					log.Errorf("Error shutting down server: %v", err)
				}
			}()

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			log.WithFields(log.Fields{
				"addr":  addr,
				"eager": cfg.Pipeline.EagerLookup,
			}).Info("Starting server")
			listenErr := app.Listen(addr)

			stop()
			wg.Wait()
			pipeline.Wait()

			log.Info("Done!")
			return listenErr
		},
	}
}
