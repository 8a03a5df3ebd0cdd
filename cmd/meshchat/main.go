package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/crisismesh/meshchat/internal/config"
	"github.com/crisismesh/meshchat/internal/session"
	"github.com/crisismesh/meshchat/internal/transport"
	"github.com/crisismesh/meshchat/internal/transport/tcp"
	"github.com/crisismesh/meshchat/internal/transport/ws"
	"github.com/crisismesh/meshchat/internal/tui"
)

var (
	configPath    string
	relayAddr     string
	transportName string
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:   "meshchat",
	Short: "Terminal chat client for a mesh relay",
	Long: `meshchat keeps one persistent connection to a relay endpoint and
exchanges newline-delimited text messages with everyone else on it.

Configuration is read from a YAML file (see --config); flags override
file values. The UI takes over the terminal, so logs go to the
configured log file.`,
	SilenceUsage: true,
	RunE:         runClient,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "meshchat.yaml", "Path to config file")
	rootCmd.Flags().StringVar(&relayAddr, "relay", "", "Relay address (host:port), overrides config")
	rootCmd.Flags().StringVar(&transportName, "transport", "", "Transport: tcp or ws, overrides config")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func runClient(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if relayAddr != "" {
		cfg.Relay.Address = relayAddr
	}
	if transportName != "" {
		cfg.Relay.Transport = transportName
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	var dialer transport.Dialer
	switch cfg.Relay.Transport {
	case config.TransportWS:
		dialer = ws.Dialer{}
	default:
		dialer = tcp.Dialer{}
	}

	sess := session.New(dialer,
		session.WithLogger(logger),
		session.WithDialTimeout(cfg.Relay.DialTimeout),
		session.WithHistoryCapacity(cfg.History.Capacity),
	)
	defer sess.Close()

	if cfg.Reconnect.Enabled {
		r := session.NewReconnector(sess, cfg.Relay.Address, session.ReconnectPolicy{
			InitialDelay: cfg.Reconnect.InitialDelay,
			MaxDelay:     cfg.Reconnect.MaxDelay,
			MaxAttempts:  cfg.Reconnect.MaxAttempts,
		}, logger)
		defer r.Stop()
	}

	sess.Connect(cfg.Relay.Address)

	p := tea.NewProgram(tui.New(sess, cfg.Relay.Address), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("ui error: %w", err)
	}
	return nil
}

// buildLogger writes structured logs to the configured file. With no file
// configured logging is disabled entirely: the TUI owns the terminal.
func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	if cfg.File == "" {
		return zap.NewNop(), nil
	}

	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{cfg.File}
	zcfg.ErrorOutputPaths = []string{cfg.File}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", cfg.Level, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
