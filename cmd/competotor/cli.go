package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v2"

	"github.com/shahar42/competotor-agent/ideawatch"
)

func newApp() *cli.App {
	app := &cli.App{
		Name:    "competotor",
		Usage:   "Scan the market for products similar to your idea",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, EnvVars: []string{"COMPETOTOR_CONFIG"}, Usage: "YAML config file"},
			&cli.StringFlag{Name: "db", EnvVars: []string{"DATABASE_PATH"}, Value: "data/competotor.db", Usage: "SQLite database path"},
			&cli.StringFlag{Name: "log-level", EnvVars: []string{"LOG_LEVEL"}, Value: "info", Usage: "debug, info, warn or error"},
		},
		Before: func(c *cli.Context) error {
			slog.SetDefault(newLogger(c.String("log-level"), os.Stdout))
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(),
			scanCmd(),
			submitCmd(),
			resultsCmd(),
			unsubscribeCmd(),
		},
	}
	return app
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API, the scan workers and the monitoring scheduler",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", EnvVars: []string{"PORT"}, Value: "8000"},
			&cli.StringFlag{Name: "mcp", EnvVars: []string{"MCP_TRANSPORT"}, Usage: "Expose MCP tools: http (mounted at /mcp) or stdio"},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rt, err := open(ctx, c)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.svc.Start(ctx); err != nil {
				return err
			}

			r := chi.NewRouter()
			r.Mount("/", rt.svc.Handler())

			switch c.String("mcp") {
			case "":
			case "http":
				handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return rt.mcpServer() }, nil)
				r.Handle("/mcp", handler)
				slog.Info("mcp over http enabled", "path", "/mcp")
			case "stdio":
				go func() {
					if err := rt.mcpServer().Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
						slog.Error("mcp stdio", "error", err)
					}
					cancel()
				}()
				slog.Info("mcp over stdio enabled")
			default:
				return fmt.Errorf("unknown mcp transport %q", c.String("mcp"))
			}

			srv := &http.Server{
				Addr:              ":" + c.String("port"),
				Handler:           r,
				ReadHeaderTimeout: 10 * time.Second,
				WriteTimeout:      60 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			errc := make(chan error, 1)
			go func() {
				slog.Info("server starting", "port", c.String("port"), "sources", rt.svc.Sources())
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errc <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-errc:
				return err
			}
			slog.Info("shutting down")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown", "error", err)
			}
			slog.Info("server stopped")
			return nil
		},
	}
}

func scanCmd() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Run one scan synchronously and print its report",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "idea", Required: true, Usage: "Idea ID"},
		},
		Action: func(c *cli.Context) error {
			rt, err := open(c.Context, c)
			if err != nil {
				return err
			}
			defer rt.close()
			rep, err := rt.svc.RunScan(c.Context, c.String("idea"))
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, rep)
		},
	}
}

func submitCmd() *cli.Command {
	return &cli.Command{
		Name:  "submit",
		Usage: "Submit an idea and scan it immediately",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Required: true},
			&cli.StringFlag{Name: "image", Usage: "Path to an image of the concept"},
			&cli.StringFlag{Name: "monitor", Usage: "Monitoring window: 1m, 3m or 6m"},
			&cli.BoolFlag{Name: "no-scan", Usage: "Only queue the scan for a running server"},
		},
		Action: func(c *cli.Context) error {
			req := ideawatch.SubmitRequest{
				Email:       c.String("email"),
				Description: c.String("description"),
				Monitor:     c.String("monitor"),
			}
			if path := c.String("image"); path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read image: %w", err)
				}
				req.Image = base64.StdEncoding.EncodeToString(data)
			}

			rt, err := open(c.Context, c)
			if err != nil {
				return err
			}
			defer rt.close()
			if c.Bool("no-scan") {
				idea, err := rt.svc.SubmitIdea(c.Context, req)
				if err != nil {
					return err
				}
				return printJSON(c.App.Writer, idea)
			}
			_, rep, err := rt.svc.SubmitAndScan(c.Context, req)
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, rep)
		},
	}
}

func resultsCmd() *cli.Command {
	return &cli.Command{
		Name:      "results",
		Usage:     "Print every idea of a user with its competitors",
		ArgsUsage: "<email>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("results: expected one email argument")
			}
			rt, err := open(c.Context, c)
			if err != nil {
				return err
			}
			defer rt.close()
			res, err := rt.svc.Results(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, res)
		},
	}
}

func unsubscribeCmd() *cli.Command {
	return &cli.Command{
		Name:      "unsubscribe",
		Usage:     "Stop all notifications to an email",
		ArgsUsage: "<email>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("unsubscribe: expected one email argument")
			}
			rt, err := open(c.Context, c)
			if err != nil {
				return err
			}
			defer rt.close()
			return rt.svc.Unsubscribe(c.Context, c.Args().First())
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// env returns the environment value of key, or def.
func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
