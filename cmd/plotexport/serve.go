package main

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	exporthttp "github.com/goliatone/go-static-export/adapters/http"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
	maxBodyBytes    = 32 << 20
)

func getCmdServe(gs *globalState) *cobra.Command {
	var (
		addr     string
		basePath string
	)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the render endpoint over HTTP",
		Long: `Serve the render endpoint over HTTP.

  POST {base} renders a plot, GET {base}/history lists recorded renders and
  GET {base}/history/{id} returns one record.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, tracker, release, err := gs.newExporter(cmd)
			if err != nil {
				return err
			}
			defer release()

			log := gs.logger.WithField("component", "plotexport-http")
			handler := exporthttp.NewHandler(exp, exporthttp.Config{
				BasePath:     basePath,
				MaxBodyBytes: maxBodyBytes,
				History:      tracker,
				Logger:       log,
			})
			app := newServer(handler, basePath, gs.stderr)

			errCh := make(chan error, 1)
			go func() {
				log.Infof("listening on %s", addr)
				errCh <- app.Listen(addr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			log.Infof("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return app.ShutdownWithContext(ctx)
		},
	}

	flags := serveCmd.Flags()
	flags.StringVar(&addr, "addr", ":8080", "listen address")
	flags.StringVar(&basePath, "base-path", "/render", "render endpoint path")
	return serveCmd
}

func newServer(handler http.Handler, basePath string, accessLog io.Writer) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "plotexport",
		BodyLimit:             maxBodyBytes,
		DisableStartupMessage: true,
	})

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
		Output: accessLog,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	basePath = strings.TrimRight(basePath, "/")
	if basePath == "" {
		basePath = "/render"
	}
	render := adaptor.HTTPHandler(handler)
	app.All(basePath, render)
	app.All(basePath+"/*", render)
	return app
}
