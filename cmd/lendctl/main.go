package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/credinet/credinet/internal/app"
	"github.com/credinet/credinet/internal/platform/db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lendctl",
		Short: "Operate the credinet lending engine",
		Long: `lendctl runs operator tasks against the credinet database and job queue:
applying the schema, seeding cut periods, previewing amortization schedules and
triggering background jobs. Configuration is read from the same environment
variables as the server.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().Bool("json", false, "print machine-readable JSON")

	root.AddCommand(migrateCmd())
	root.AddCommand(periodsCmd())
	root.AddCommand(scheduleCmd())
	root.AddCommand(jobsCmd())
	root.AddCommand(seedCmd())
	return root
}

// connect loads configuration and opens the database pool.
func connect(cmd *cobra.Command) (*app.Config, *pgxpool.Pool, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	pool, err := db.New(cmd.Context(), cfg.PGDSN, cfg.PGMaxConn)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, pool, logger, nil
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
