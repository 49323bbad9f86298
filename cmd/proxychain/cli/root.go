// Package cli wires the proxychain command-line entry point: flag parsing
// via cobra, layered configuration via proxy.LoadCLIConfig, structured
// logging, and Server start/stop.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/proxychain-go/proxychain/proxy"
	"github.com/proxychain-go/proxychain/version"
)

var (
	flagAddr       string
	flagRealm      string
	flagVerbose    bool
	flagUpstream   string
	flagConfigFile string
)

var rootCmd = &cobra.Command{
	Use:   "proxychain",
	Short: "A multiplexing HTTP proxy front-end",
	Long: `proxychain accepts client connections, authenticates them against an
optional policy callback, and dispatches each request down a direct tunnel,
a chained HTTP or SOCKS tunnel, a forwarded HTTP request, or a synthetic
custom response.`,
	Version:      version.String(),
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.Flags().StringVar(&flagAddr, "addr", ":8000", "listen address")
	rootCmd.Flags().StringVar(&flagRealm, "realm", "ProxyChain", "authentication realm (Server header, 407 challenges)")
	rootCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "enable debug-level request/connection logging")
	rootCmd.Flags().StringVar(&flagUpstream, "upstream", "", "static upstream proxy URL (http:// or socks://)")
	rootCmd.Flags().StringVar(&flagConfigFile, "config", "", "optional YAML file overlaying addr/realm/verbose/upstream")
}

// Execute runs the root command, returning any error cobra or the serve
// loop produced.
func Execute() error {
	return rootCmd.Execute()
}

func runServe(cmd *cobra.Command, _ []string) error {
	cliCfg, err := proxy.LoadCLIConfig(flagConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Flags explicitly set on the command line win over the file/env
	// overlay LoadCLIConfig already applied.
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cliCfg.Addr = flagAddr
	}
	if flags.Changed("realm") {
		cliCfg.Realm = flagRealm
	}
	if flags.Changed("verbose") {
		cliCfg.Verbose = flagVerbose
	}
	if flags.Changed("upstream") {
		cliCfg.Upstream = flagUpstream
	}

	level := slog.LevelInfo
	if cliCfg.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	serverCfg, err := cliCfg.ToServerConfig()
	if err != nil {
		return err
	}

	server := proxy.NewServer(serverCfg)
	server.OnRequestFailed(func(evt proxy.RequestFailedEvent) {
		slog.Error("request failed", "error", evt.Error)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Listen() }()
	slog.Info("proxychain started", "addr", cliCfg.Addr, "version", version.String())

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down", "version", version.String())
		if err := server.Close(true); err != nil {
			return fmt.Errorf("close: %w", err)
		}
		<-serveErr
		return nil
	}
}
