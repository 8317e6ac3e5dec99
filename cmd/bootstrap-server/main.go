// Command bootstrap-server runs the bootstrap server manager (spec §5): it
// loads configuration, wires the access list (C4) and session scheduler
// (C5), and serves bootstrap sessions (C6) until interrupted.
//
// Grounded on cmd/cli/bootstrap_node.go's PersistentPreRunE-init + start
// subcommand shape, adapted from a libp2p BootstrapNode to a raw
// net.Listener manager with a prometheus metrics endpoint alongside it.
package main

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"synnergy-bootstrap/internal/accesslist"
	"synnergy-bootstrap/internal/bootstrap"
	"synnergy-bootstrap/internal/consensusiface"
	"synnergy-bootstrap/internal/finalstate"
	"synnergy-bootstrap/internal/identity"
	"synnergy-bootstrap/internal/metrics"
	"synnergy-bootstrap/internal/peernet"
	"synnergy-bootstrap/internal/ratewindow"
	"synnergy-bootstrap/internal/scheduler"
	"synnergy-bootstrap/internal/server"
	"synnergy-bootstrap/pkg/config"
)

func init() {
	viper.SetDefault("logging.level", "info")
}

func main() {
	root := &cobra.Command{Use: "bootstrap-server", Short: "Synnergy bootstrap server"}
	root.PersistentFlags().String("env", "", "environment-specific config overlay (e.g. prod, dev)")
	root.PersistentFlags().String("metrics-addr", "", "address to serve /metrics on, empty disables it")

	start := &cobra.Command{
		Use:   "start",
		Short: "load configuration and serve bootstrap sessions until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, _ := cmd.Flags().GetString("env")
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			return runStart(env, metricsAddr)
		},
	}
	root.AddCommand(start)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runStart(env, metricsAddr string) error {
	cfg, err := config.Load(env)
	if err != nil {
		return err
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log := logrus.New()
	log.SetLevel(level)
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			log.SetOutput(f)
		} else {
			log.WithError(err).Warn("bootstrap-server: could not open log file, logging to stderr")
		}
	}

	keys, err := identity.Generate()
	if err != nil {
		return fmt.Errorf("generate node identity: %w", err)
	}

	var trustedPeer []byte
	if cfg.TrustedPeerPublicKeyHex != "" {
		trustedPeer, err = hex.DecodeString(cfg.TrustedPeerPublicKeyHex)
		if err != nil {
			return fmt.Errorf("decode trusted_peer_public_key: %w", err)
		}
	} else {
		log.Warn("bootstrap-server: no trusted_peer_public_key configured, inbound signatures will never verify")
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}
	log.WithField("listen_addr", cfg.ListenAddr).Info("bootstrap-server: listening")

	store := finalstate.NewMemoryStore(1024)
	consensus := consensusiface.NewMemoryController(nil)
	peers := peernet.NewMemoryDirectory(nil)

	accessList := accesslist.New(cfg.BootstrapWhitelistPath, cfg.BootstrapBlacklistPath, log)
	if err := accessList.Load(); err != nil {
		log.WithError(err).Warn("bootstrap-server: initial access-list load failed, starting with an empty list")
	}
	stopList := make(chan struct{})
	go accessList.Run(stopList, cfg.CacheDuration)

	reg := prometheus.NewRegistry()
	metricsReg := metrics.NewRegistry(reg)
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.WithError(err).Warn("bootstrap-server: metrics server stopped")
			}
		}()
		log.WithField("metrics_addr", metricsAddr).Info("bootstrap-server: serving metrics")
	}

	window := ratewindow.New(cfg.PerIPMinInterval, cfg.IPListMaxSize, log)

	deps := bootstrap.ServerDeps{
		Store:             store,
		Consensus:         consensus,
		Peers:             peers,
		Log:               log,
		Metrics:           metricsReg,
		BootstrapPartSize: cfg.BootstrapPartSize,
		Version:           "BOOT.1",
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		ReadErrorTimeout:  cfg.ReadErrorTimeout,
		BootstrapTimeout:  cfg.BootstrapTimeout,
	}

	sched := scheduler.New(scheduler.Config{
		Listener:        listener,
		AccessList:      accessList,
		RateWindow:      window,
		Metrics:         metricsReg,
		MaxSimultaneous: cfg.MaxSimultaneousBootstraps,
		Log:             log,
		Runner: func(conn net.Conn) string {
			return runSession(conn, keys, trustedPeer, cfg, deps, log)
		},
		Refuse: func(conn net.Conn, text string) {
			refuseConnection(conn, keys, trustedPeer, cfg, text, log)
		},
	})

	go sched.Run()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("bootstrap-server: shutting down")
	sched.Stop()
	sched.Wait()
	close(stopList)
	return listener.Close()
}

// runSession completes the server-side handshake then hands the connection
// to the bootstrap state machine. It never returns an error to the caller;
// session-fatal conditions are logged and reflected in the returned result
// label instead (spec §7 propagation policy), which the scheduler feeds into
// the sessions_total metric.
func runSession(conn net.Conn, keys identity.KeyPair, trustedPeer []byte, cfg *config.Config, deps bootstrap.ServerDeps, log logrus.FieldLogger) string {
	remote := conn.RemoteAddr().String()
	binder := server.New(conn, cfg.MaxBootstrapMessageSize, keys, trustedPeer, log)
	if err := binder.ReadHandshake(len("BOOT.1"), cfg.RandomnessSizeBytes, cfg.ReadTimeout); err != nil {
		log.WithField("remote_addr", remote).WithError(err).Debug("bootstrap-server: handshake failed")
		conn.Close()
		return "handshake_error"
	}
	result := bootstrap.RunServerSession(binder, remote, deps)
	log.WithField("remote_addr", remote).WithField("result", result).Debug("bootstrap-server: session ended")
	return result
}

// refuseConnection sends a best-effort BootstrapError frame before closing a
// connection the scheduler denied admission to (spec P5). No handshake has
// been read yet, so the chain starts unseeded: the frame is signed over the
// hash of its payload alone, not chained from a handshake seed as the frames
// of an admitted session are.
func refuseConnection(conn net.Conn, keys identity.KeyPair, trustedPeer []byte, cfg *config.Config, text string, log logrus.FieldLogger) {
	binder := server.New(conn, cfg.MaxBootstrapMessageSize, keys, trustedPeer, log)
	binder.CloseAndSendError(text, conn.RemoteAddr().String(), cfg.WriteTimeout, nil)
}
