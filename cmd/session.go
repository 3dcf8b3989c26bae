package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/mselser95/gridbot/internal/app"
	"github.com/mselser95/gridbot/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var outputFormat string

const commandTimeout = 2 * time.Minute

// withSession loads configuration, opens a session and runs fn with it.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *app.Session) error) error {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	s, err := app.OpenSession(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer s.Close()

	return fn(ctx, s)
}

func jsonOutput() bool {
	return outputFormat == "json"
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
