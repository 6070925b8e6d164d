package server

import (
	"bufio"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"drudge/models"
	"drudge/push"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

//go:embed dist/*
var dist embed.FS

const sseKeepAlive = 5 * time.Second

// Feed is the part of the pipeline the HTTP surface reads from
type Feed interface {
	Current() models.DisplayList
	Resolve(ctx context.Context, title string) models.Resolution
}

type ServerConfig struct {
	Feed Feed

	// Broadcaster passes published display lists to SSE clients
	Broadcaster *Broadcaster

	// AllowOrigins is the CORS allow list, "*" allows any origin
	AllowOrigins []string

	// Push is reported by /health when set
	Push *push.Status

	// KeepAlive is the SSE ping interval, 5s when zero
	KeepAlive time.Duration
}

func writeEvent(w *bufio.Writer, event string, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}

// Returns a fiber.App instance serving the display list, the live stream and
// the companion link redirect
func Server(config *ServerConfig) *fiber.App {
	bc := config.Broadcaster
	keepAlive := config.KeepAlive
	if keepAlive <= 0 {
		keepAlive = sseKeepAlive
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New(compress.Config{
		// the event stream is never compressed
		Next: func(c *fiber.Ctx) bool {
			return strings.HasSuffix(c.Path(), "/sse")
		},
	}))

	origins := strings.Join(config.AllowOrigins, ",")
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Cache-Control",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		health := fiber.Map{
			"status":  "ok",
			"version": config.Feed.Current().Version,
			"clients": bc.Count(),
		}
		if config.Push != nil {
			health["push"] = config.Push.State()
		}
		return c.JSON(health)
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/api/documents", func(c *fiber.Ctx) error {
		return c.JSON(config.Feed.Current())
	})

	// Click-time lookup always asks the forum again
	app.Get("/discuss", func(c *fiber.Ctx) error {
		if !c.Context().QueryArgs().Has("title") {
			return c.Status(fiber.StatusBadRequest).SendString("Missing title")
		}
		title := c.Query("title")

		res := config.Feed.Resolve(c.UserContext(), title)

		log.WithFields(log.Fields{
			"title":    title,
			"existing": res.Existing,
			"url":      res.URL,
		}).Info("Resolved companion link")

		return c.Redirect(res.URL, fiber.StatusFound)
	})

	app.Delete("/api/documents/sse", func(c *fiber.Ctx) error {
		key := c.Query("key", "")
		bc.RemoveClient(key)
		return c.Status(fiber.StatusOK).SendString("OK")
	})

	app.Get("/api/documents/sse", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		key := uuid.New().String()
		documents := make(chan models.DisplayList, 1)
		bc.AddClient(key, documents)
		current := config.Feed.Current()

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			aliveChan := time.NewTicker(keepAlive)
			defer aliveChan.Stop()
			defer func() {
				log.Infof("Cleaning up SSE stream for client: %s", key)
				bc.RemoveClient(key)
			}()

			if err := writeEvent(w, "init", key); err != nil {
				log.Errorf("Failed to send init event: %v", err)
				return
			}

			send := func(list models.DisplayList) bool {
				data, err := json.Marshal(list)
				if err != nil {
					log.Errorf("Error marshalling display list for client %s: %v", key, err)
					return true
				}
				if err := writeEvent(w, "documents", string(data)); err != nil {
					log.Warnf("Failed to send documents event to client %s: %v", key, err)
					return false
				}
				return true
			}

			if current.Entries != nil && !send(current) {
				return
			}

			for {
				select {
				case <-aliveChan.C:
					if err := writeEvent(w, "ping", ""); err != nil {
						log.Warnf("Failed to send ping to client %s: %v", key, err)
						return
					}
				case list, ok := <-documents:
					if !ok {
						log.Warnf("Documents channel closed for client %s", key)
						return
					}
					if !send(list) {
						return
					}
				}
			}
		}))

		return nil
	})

	app.Use("/", filesystem.New(filesystem.Config{
		Browse:     false,
		Index:      "index.html",
		Root:       http.FS(dist),
		PathPrefix: "/dist",
	}))

	return app
}
