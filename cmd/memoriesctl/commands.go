package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v3"

	"github.com/tjfontaine/memories-gateway/internal/core/domain"
	"github.com/tjfontaine/memories-gateway/internal/core/ports"
	"github.com/tjfontaine/memories-gateway/internal/fixture"
	"github.com/tjfontaine/memories-gateway/internal/pkg/config"
	"github.com/tjfontaine/memories-gateway/internal/runtime"
	"github.com/tjfontaine/memories-gateway/internal/server"
	"github.com/tjfontaine/memories-gateway/internal/telemetry"
	"github.com/tjfontaine/memories-gateway/internal/upload"
)

// openClient loads configuration, applies the global flags and assembles
// the gateway. The returned function flushes telemetry and closes the client.
func openClient(cmd *cli.Command) (*runtime.Client, func(), error) {
	cfg, err := config.LoadFile(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if v := cmd.String("base-url"); v != "" {
		cfg.API.BaseURL = v
	}
	if cmd.Bool("fixture") {
		cfg.API.Transport = config.TransportFixture
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := slog.Default()
	shutdown, err := telemetry.InitTracer(cfg.Telemetry, os.Stderr, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	c, err := runtime.New(runtime.WithConfig(cfg), runtime.WithLogger(logger))
	if err != nil {
		shutdown(context.Background())
		return nil, nil, err
	}

	closeFn := func() {
		if err := c.Close(); err != nil {
			logger.Error("failed to close client", slog.String("error", err.Error()))
		}
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}
	return c, closeFn, nil
}

func invokeCommand() *cli.Command {
	return &cli.Command{
		Name:      "invoke",
		Usage:     "call one backend endpoint and print the result",
		ArgsUsage: "<endpoint>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Value:   "{}",
				Usage:   "JSON object payload",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			endpoint := cmd.Args().First()
			if endpoint == "" {
				return cli.Exit("endpoint is required, e.g. /Groups/_listGroupsForUser", 2)
			}
			var payload ports.Payload
			if err := json.Unmarshal([]byte(cmd.String("data")), &payload); err != nil {
				return cli.Exit(fmt.Sprintf("--data must be a JSON object: %v", err), 2)
			}

			c, closeFn, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := c.RPC.Invoke(ctx, endpoint, payload)
			if err != nil {
				return failWithTrace(c, err)
			}
			return printJSON(stdout(cmd), result)
		},
	}
}

func uploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "upload an image through the delegated URL protocol",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "owner", Required: true, Usage: "uploading user id"},
			&cli.StringFlag{Name: "memory", Usage: "memory entry to attach the image to"},
			&cli.StringFlag{Name: "content-type", Usage: "defaults to the type implied by the file extension"},
			&cli.DurationFlag{Name: "expires", Usage: "delegated URL lifetime"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return cli.Exit("file is required", 2)
			}
			body, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			contentType := cmd.String("content-type")
			if contentType == "" {
				contentType = mime.TypeByExtension(filepath.Ext(path))
			}
			if contentType == "" {
				contentType = http.DetectContentType(body)
			}

			c, closeFn, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			image, err := c.Images.Upload(ctx, upload.Request{
				Owner:       cmd.String("owner"),
				FileName:    filepath.Base(path),
				Body:        body,
				ContentType: contentType,
				Memory:      cmd.String("memory"),
				ExpiresIn:   cmd.Duration("expires"),
			})
			if err != nil {
				return failWithTrace(c, err)
			}
			return printJSON(stdout(cmd), image)
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the debug panel and relay POST /invoke/<Service>/<action> to the backend",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "overrides debug.listen"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, closeFn, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			srv := c.DebugServer()
			if v := cmd.String("listen"); v != "" {
				srv.Addr = v
			}
			srv.Router.Post("/invoke/*", relayHandler(c))
			return srv.Run(ctx)
		},
	}
}

// relayHandler forwards a JSON body to the backend through the gateway so
// the calls show up in the trace.
func relayHandler(c *runtime.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		endpoint := "/" + chi.URLParam(r, "*")

		var payload ports.Payload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "body must be a JSON object", http.StatusBadRequest)
			return
		}

		result, err := c.RPC.Invoke(r.Context(), endpoint, payload)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			server.AddError(r.Context(), err)
			var derr *domain.Error
			status := http.StatusBadGateway
			if errors.As(err, &derr) && derr.HasStatus() {
				status = derr.Status
			}
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error(), "kind": string(domain.KindOf(err))})
			return
		}
		w.Write(result)
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "print trace events from the journal",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "number of events"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, closeFn, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if c.Journal() == nil {
				return cli.Exit("no trace journal configured (set journal.driver and journal.dsn)", 2)
			}
			events, err := c.Journal().Recent(ctx, int(cmd.Int("limit")))
			if err != nil {
				return err
			}
			for _, ev := range events {
				fmt.Fprintln(stdout(cmd), formatEvent(ev))
			}
			return nil
		},
	}
}

func devBackendCommand() *cli.Command {
	return &cli.Command{
		Name:  "devbackend",
		Usage: "run the fixture backend and its object store on a local port",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Value: "127.0.0.1:8000"},
			&cli.StringFlag{Name: "prefix", Value: fixture.DefaultAPIPrefix},
			&cli.StringFlag{Name: "fixtures", Usage: "YAML file of canned responses"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := slog.Default()
			opts := []fixture.Option{
				fixture.WithAPIPrefix(cmd.String("prefix")),
				fixture.WithLogger(logger),
			}
			if path := cmd.String("fixtures"); path != "" {
				overrides, err := fixture.LoadOverrides(path)
				if err != nil {
					return err
				}
				opts = append(opts, fixture.WithOverrides(overrides))
			}

			srv := &http.Server{
				Addr:              cmd.String("listen"),
				Handler:           server.LoggingMiddleware(logger)(fixture.New(opts...)),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("fixture backend listening", slog.String("addr", srv.Addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

// failWithTrace prints the trace window next to the error, mirroring what
// the debug panel would show.
func failWithTrace(c *runtime.Client, err error) error {
	fmt.Fprintln(os.Stderr, "last backend exchanges:")
	for _, ev := range c.Trace.Snapshot() {
		fmt.Fprintln(os.Stderr, "  "+formatEvent(ev))
	}
	kind := domain.KindOf(err)
	if kind == "" {
		return err
	}
	return cli.Exit(fmt.Sprintf("%s: %s", kind, err.Error()), 1)
}

func formatEvent(ev domain.TraceEvent) string {
	parts := []string{ev.Time().Format(time.RFC3339Nano), strings.ToUpper(string(ev.Kind))}
	if ev.Method != "" {
		parts = append(parts, ev.Method)
	}
	parts = append(parts, ev.URL)
	if ev.HasStatus() {
		parts = append(parts, fmt.Sprintf("%d", ev.StatusCode()))
	}
	if ev.Message != "" {
		parts = append(parts, fmt.Sprintf("%q", ev.Message))
	}
	return strings.Join(parts, " ")
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func printJSON(w io.Writer, v any) error {
	if raw, ok := v.(json.RawMessage); ok {
		var pretty any
		if err := json.Unmarshal(raw, &pretty); err == nil {
			v = pretty
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
