// Command legshim is the translator entry point: it hosts a LEG server
// the client connects to and relays traffic on to a NEW upstream,
// spinning up additional relays on demand as redirect packets are
// observed.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"legshim/internal/applog"
	"legshim/internal/config"
	"legshim/internal/relay"
	"legshim/internal/scanner"
)

// version is the displayed build version.
const version = "1.0.0"

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath   string
		listenFlag   string
		upstreamPort int
		logLevelFlag string
		logPretty    bool
	)

	cmd := &cobra.Command{
		Use:   "legshim",
		Short: "Transparent LEG-to-NEW protocol translator",
		Long: `legshim hosts a legacy reliable-UDP server that a closed-source
client connects to unmodified. Traffic is translated on the fly and
relayed to an upstream server speaking the NEW protocol, spinning up
additional relays as the upstream redirects the client elsewhere.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			flags := cmd.Flags()
			if flags.Changed("listen") {
				cfg.Listen = listenFlag
			}
			if flags.Changed("upstream-port") {
				cfg.UpstreamPort = upstreamPort
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevelFlag
			}
			return run(cfg, logPretty)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "shim_config.txt", "path to the config file")
	flags.StringVar(&listenFlag, "listen", config.DefaultListenAddr, "address the first relay listens on")
	flags.IntVar(&upstreamPort, "upstream-port", config.DefaultUpstreamPort, "port relays connect to on the upstream host")
	flags.StringVar(&logLevelFlag, "log-level", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&logPretty, "log-pretty", true, "colorize console log output")

	return cmd
}

func run(cfg config.Config, logPretty bool) error {
	log := applog.New(config.ParseLogLevel(cfg.LogLevel), logPretty)
	applog.SetDefault(log)

	applog.Banner("LEG to NEW translator", version)

	listenAddr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("resolving listen address: %w", err)
	}
	upstreamAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.UpstreamHost, strconv.Itoa(cfg.UpstreamPort)))
	if err != nil {
		return fmt.Errorf("resolving upstream address: %w", err)
	}
	tlsConfig, err := cfg.TLSClientConfig()
	if err != nil {
		return fmt.Errorf("building tls config: %w", err)
	}

	registry := relay.NewRegistry()
	first, err := relay.Listen(listenAddr, upstreamAddr, tlsConfig, log)
	if err != nil {
		return fmt.Errorf("starting initial relay: %w", err)
	}
	// Pre-seed the registry exactly like the original's addrs.insert call
	// before the first shim is pushed: a redirect back to the auth
	// server's own address must resolve to this same relay, not spawn a
	// new one.
	registry.Apply([]scanner.Command{{Upstream: upstreamAddr, Local: first.LocalAddr()}})
	registry.Add(first)

	spawner := relay.NewSpawner(tlsConfig, log, rate.NewLimiter(rate.Limit(10), 20))

	log.Info("listening for clients", "addr", first.LocalAddr(), "upstream", upstreamAddr)
	fmt.Println("To use this shim, set your client's AUTHSERVERIP in boot.cfg to localhost.")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- relay.RunEventLoop(ctx, registry, spawner)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("event loop: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Warn("received shutdown signal, shutting down gracefully")
		select {
		case <-errCh:
		case <-time.After(time.Second):
		}
		log.Info("shim stopped")
		return nil
	}
}
