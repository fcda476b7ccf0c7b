package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/n9te9/go-graphql-rpc-gateway/server"
	"github.com/spf13/cobra"
)

const version = "v0.1.0"

var (
	configPath   string
	logLevel     string
	logFormat    string
	demoMode     bool
	probeTimeout time.Duration
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of RPC Gateway",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "RPC Gateway "+version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter gateway configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := server.Init(configPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the RPC Gateway server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Run(cmd.Context(), configPath,
			server.WithLogger(slog.Default()),
			server.WithDemo(demoMode),
		)
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe <queue>",
	Short: "Print the schema of the service answering on a queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := server.LoadConfig()
		if err != nil {
			return err
		}
		return server.Probe(cmd.Context(), cfg, args[0], probeTimeout, cmd.OutOrStdout(),
			server.WithLogger(slog.Default()),
		)
	},
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lv}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q, want text or json", format)
	}
}

func main() {
	rootCmd := cobra.Command{
		Use:           "rpc-gateway",
		Short:         "GraphQL gateway over AMQP request/reply",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(logLevel, logFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "text or json")

	initCmd.Flags().StringVarP(&configPath, "config", "c", "gateway.yaml", "path to write the configuration to")
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "gateway.yaml", "path to the gateway configuration")
	serveCmd.Flags().BoolVar(&demoMode, "demo", false, "serve the bundled users and posts services in process")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 5*time.Second, "how long to wait for the service")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(probeCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
