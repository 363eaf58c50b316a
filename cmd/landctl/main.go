package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/landctl/internal/config"
	"github.com/cuemby/landctl/pkg/controlplane"
	"github.com/cuemby/landctl/pkg/log"
	"github.com/cuemby/landctl/pkg/repository"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "landctl",
	Short:   "landctl - Runtime.land control plane",
	Long:    "landctl runs the Runtime.land control plane: project and deployment management, worker reconciliation, and the worker-facing sync endpoint, in a single binary.",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("landctl version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	serveCmd.Flags().String("admin-addr", "127.0.0.1:8080", "Address for the user-facing AdminAPI")
	serveCmd.Flags().String("worker-addr", "127.0.0.1:8081", "Address for the worker-facing SyncEndpoint")
	rootCmd.AddCommand(serveCmd)

	migrateCmd.Flags().Bool("dry-run", false, "Show the current migration status without applying anything")
	rootCmd.AddCommand(migrateCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control plane's HTTP API and background loops",
	RunE: func(cmd *cobra.Command, args []string) error {
		adminAddr, _ := cmd.Flags().GetString("admin-addr")
		workerAddr, _ := cmd.Flags().GetString("worker-addr")

		env, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx := context.Background()
		repo, err := repository.NewPostgres(ctx, repository.PostgresConfig{
			DSN:         env.Postgres.DSN(),
			MaxOpenConn: env.Postgres.PoolSize,
		})
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}

		plane, err := controlplane.New(ctx, repo, env)
		if err != nil {
			return fmt.Errorf("build control plane: %w", err)
		}

		if err := plane.Start(controlplane.Addrs{Admin: adminAddr, Worker: workerAddr}); err != nil {
			return fmt.Errorf("start control plane: %w", err)
		}

		fmt.Printf("landctl serving\n  AdminAPI:     http://%s\n  SyncEndpoint: http://%s\n", adminAddr, workerAddr)
		fmt.Println("Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		plane.Stop(ctx)
		fmt.Println("Shutdown complete")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long:  "Applies every pending goose migration against POSTGRES_*. Folds in what the teacher's standalone migrate binary did as a subcommand.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		env, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		db, err := sql.Open("pgx", env.Postgres.DSN())
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()

		if dryRun {
			fmt.Println("Current migration status:")
			return repository.MigrationStatus(db, "postgres")
		}

		fmt.Println("Applying migrations...")
		if err := repository.Migrate(db, "postgres"); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Println("Migrations applied successfully")
		return nil
	},
}
