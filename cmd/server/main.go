package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/remotedom/internal/infrastructure/config"
	"github.com/GriffinCanCode/remotedom/internal/infrastructure/logging"
	"github.com/GriffinCanCode/remotedom/internal/infrastructure/server"
)

var (
	port    string
	dev     bool
	seedDir string
)

var rootCmd = &cobra.Command{
	Use:   "remotedom",
	Short: "Remote DOM bridge",
	Long: `remotedom keeps per-URI element trees on the server and streams
their mutations to connected hosts as batched mutate and call messages.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	Long: `Runs the server. Configuration comes from the environment
(PORT, LOG_LEVEL, FLUSH_DELAY, SEED_DIR, WEBHOOK_URL, REDIS_ADDR, ...);
flags override it.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}
	if dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	if cmd.Flags().Changed("seed-dir") {
		cfg.Seed.Dir = seedDir
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run("")
	}()

	select {
	case <-sigChan:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Close(ctx)
	case err := <-errChan:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Close(ctx)
		return err
	}
}

func init() {
	serveCmd.Flags().StringVar(&port, "port", "8000", "HTTP port")
	serveCmd.Flags().BoolVar(&dev, "dev", false, "Development logging (console, debug level)")
	serveCmd.Flags().StringVar(&seedDir, "seed-dir", "", "Directory of seed documents loaded at startup")

	seedsCmd.AddCommand(seedsValidateCmd)
	rootCmd.AddCommand(serveCmd, seedsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger := logging.NewDefault()
		logger.Error("Command failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}
