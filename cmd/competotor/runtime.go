package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v2"

	"github.com/shahar42/competotor-agent/dbopen"
	"github.com/shahar42/competotor-agent/ideawatch"
	"github.com/shahar42/competotor-agent/notify"
)

// runtime owns the resources opened for one command.
type runtime struct {
	db       *sql.DB
	svc      *ideawatch.Service
	closeReg func() error
}

func (rt *runtime) close() {
	if err := rt.svc.Close(); err != nil {
		slog.Warn("service close", "error", err)
	}
	if err := rt.closeReg(); err != nil {
		slog.Warn("browser close", "error", err)
	}
	rt.db.Close()
}

func (rt *runtime) mcpServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "competotor", Version: Version}, nil)
	rt.svc.RegisterMCP(srv)
	return srv
}

// loadConfig resolves configuration: file, then environment.
func loadConfig(path string) (*ideawatch.Config, error) {
	cfg := &ideawatch.Config{}
	if path != "" {
		var err error
		if cfg, err = ideawatch.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	cfg.Sources.SerperKey = os.Getenv("SERPER_API_KEY")
	cfg.Sources.SerpAPIKey = os.Getenv("SERPAPI_KEY")
	if os.Getenv("ALIEXPRESS_BROWSER") == "1" {
		cfg.Sources.Browser = true
	}
	if u := os.Getenv("CHROME_URL"); u != "" {
		cfg.Sources.BrowserURL = u
	}
	if u := os.Getenv("BASE_URL"); u != "" {
		cfg.BaseURL = u
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + env("PORT", "8000")
	}
	if v := os.Getenv("SIMILARITY_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SIMILARITY_THRESHOLD: %w", err)
		}
		cfg.SimilarityThreshold = n
	}
	return cfg, nil
}

// newNotifier picks SendGrid, then SMTP, then a logging no-op.
func newNotifier(baseURL string, logger *slog.Logger) (notify.Notifier, error) {
	from := env("EMAIL_FROM", "alerts@competotor.local")
	composer := notify.NewComposer(baseURL)
	if key := os.Getenv("SENDGRID_API_KEY"); key != "" {
		s, err := notify.NewSendGridSender(notify.SendGridConfig{APIKey: key, FromName: env("EMAIL_FROM_NAME", "Competotor")})
		if err != nil {
			return nil, err
		}
		return notify.NewMailer(composer, s, from, logger), nil
	}
	if host := os.Getenv("SMTP_HOST"); host != "" {
		port, _ := strconv.Atoi(os.Getenv("SMTP_PORT"))
		s := notify.NewSMTPSender(notify.SMTPConfig{
			Host:     host,
			Port:     port,
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
		})
		return notify.NewMailer(composer, s, from, logger), nil
	}
	logger.Warn("no email transport configured, digests will be logged only")
	return notify.Discard(logger), nil
}

func open(ctx context.Context, c *cli.Context) (*runtime, error) {
	logger := slog.Default()
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	db, err := dbopen.Open(c.String("db"), dbopen.WithMkdirAll())
	if err != nil {
		return nil, err
	}

	backend, err := ideawatch.NewGemini(ctx, os.Getenv("GEMINI_API_KEY"), os.Getenv("GEMINI_MODEL"))
	if err != nil {
		db.Close()
		return nil, err
	}
	reg, closeReg, err := ideawatch.NewSourceRegistry(cfg.Sources, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	notifier, err := newNotifier(cfg.BaseURL, logger)
	if err != nil {
		closeReg()
		db.Close()
		return nil, err
	}

	svc, err := ideawatch.New(db, backend, cfg, logger,
		ideawatch.WithRegistry(reg),
		ideawatch.WithComplaintSearch(ideawatch.NewComplaintSearch(cfg.Sources.SerperKey)),
		ideawatch.WithNotifier(notifier),
		ideawatch.WithMetrics(ideawatch.NewMetrics()),
	)
	if err != nil {
		closeReg()
		db.Close()
		return nil, err
	}
	return &runtime{db: db, svc: svc, closeReg: closeReg}, nil
}
