package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/mselser95/gridbot/internal/app"
	"github.com/mselser95/gridbot/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the grid bot",
	Long: `Starts the grid bot, which will:
1. Load pending pairs from the configured store
2. Reconcile them against the exchange every RECONCILE_INTERVAL
3. Place the sell of every pair whose buy has filled
4. Serve the operator API, /health, /ready and /metrics on HTTP_PORT

Use --no-api to serve only the health and metrics endpoints.`,
	RunE: runBot,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("no-api", false, "Do not mount the /api routes")
}

func runBot(cmd *cobra.Command, args []string) error {
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

	noAPI, _ := cmd.Flags().GetBool("no-api")

	application, err := app.New(cfg, logger, &app.Options{DisableAPI: noAPI})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
