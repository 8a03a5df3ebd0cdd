package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/crisismesh/meshchat/internal/relay"
)

var (
	listenAddr string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "meshchat-relay",
	Short: "Chat relay for meshchat clients",
	Long: `meshchat-relay accepts TCP and WebSocket clients on a single port
and rebroadcasts every newline-delimited message to all other connected
clients.`,
	SilenceUsage: true,
	RunE:         runRelay,
}

func init() {
	rootCmd.Flags().StringVar(&listenAddr, "listen", ":9000", "Address to listen on")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func runRelay(cmd *cobra.Command, args []string) error {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	srv := relay.New(listenAddr, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logger.Info("shutting down", zap.Stringer("signal", sig))
		srv.Stop()
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
