package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ResQLink/pkg/backup"
	"ResQLink/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "resqlink",
	Short: "Offline-first emergency SOS relay node",
	Long: `ResQLink keeps SOS records in a local store until they can be relayed
over the mesh, and exposes the device gateways and records over HTTP.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the record store and serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Copy the SQLite database into BACKUP_PATH once",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()
		bc, err := backupConfig(cfg)
		if err != nil {
			return err
		}
		path, err := backup.ExecuteBackup(cmd.Context(), bc)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		if bc.Remote != nil {
			fmt.Fprintln(cmd.OutOrStdout(), bc.Remote.PublicURL(backup.RemoteKey(path)))
		}
		return nil
	},
}

var recordsStatus string

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Print stored records as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.ctrl.Records(cmd.Context(), recordsStatus)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	},
}

func init() {
	recordsCmd.Flags().StringVar(&recordsStatus, "status", "", "only records in this status (pending, sent, synced)")
	rootCmd.AddCommand(serveCmd, backupCmd, recordsCmd)
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if n, err := a.ctrl.Reindex(ctx); err != nil {
		logger.Warn("reindex failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("search index rebuilt", zap.Int("records", n))
	}

	a.ctrl.Start()

	if cfg.BackupEnabled {
		bc, err := backupConfig(cfg)
		if err != nil {
			return err
		}
		sched, err := backup.StartBackupScheduler(bc, a.metrics)
		if err != nil {
			return err
		}
		defer sched.Stop()
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: a.engine()}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	// 先断开事件流，否则 Shutdown 会一直等长连接
	a.hub.Close()
	a.wsHub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
