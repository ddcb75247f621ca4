// CLAUDE:SUMMARY Entry point for competotor: loads .env, builds the urfave/cli app, exits non-zero on error.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"
)

// Version is set at build time.
var Version = "dev"

func main() {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		slog.Error("competotor", "error", err)
		os.Exit(1)
	}
}
