// Command bootstrap-client dials a bootstrap server, completes the
// handshake, and drives one full final-state sync to completion, printing a
// summary of what it assembled (spec §5's "client view: C2 opens →
// handshake → request loop → consume streamed parts → assemble local
// state").
//
// Grounded on cmd/synnergy/main.go's single rootCmd + one leaf subcommand
// shape (no nested command groups needed for a one-shot client).
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"synnergy-bootstrap/internal/bootstrap"
	"synnergy-bootstrap/internal/client"
	"synnergy-bootstrap/internal/identity"
)

func main() {
	var (
		addr            string
		serverPubKeyHex string
		maxMessageSize  uint64
		nonceSize       int
		readTimeout     time.Duration
		writeTimeout    time.Duration
		logLevel        string
	)

	root := &cobra.Command{
		Use:   "bootstrap-client",
		Short: "dial a bootstrap server and sync its final state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(addr, serverPubKeyHex, maxMessageSize, nonceSize, readTimeout, writeTimeout, logLevel)
		},
	}
	root.Flags().StringVar(&addr, "addr", "127.0.0.1:4242", "bootstrap server address")
	root.Flags().StringVar(&serverPubKeyHex, "server-pubkey", "", "hex-encoded ed25519 public key of the server (spec §3.4 remote_pubkey)")
	root.Flags().Uint64Var(&maxMessageSize, "max-message-size", 1<<20, "negotiated frame size ceiling")
	root.Flags().IntVar(&nonceSize, "randomness-bytes", 32, "handshake nonce length")
	root.Flags().DurationVar(&readTimeout, "read-timeout", 30*time.Second, "per-frame read timeout")
	root.Flags().DurationVar(&writeTimeout, "write-timeout", 10*time.Second, "per-frame write timeout")
	root.Flags().StringVar(&logLevel, "log-level", "info", "logrus level")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSync(addr, serverPubKeyHex string, maxMessageSize uint64, nonceSize int, readTimeout, writeTimeout time.Duration, logLevel string) error {
	log := logrus.New()
	if level, err := logrus.ParseLevel(logLevel); err == nil {
		log.SetLevel(level)
	}

	if serverPubKeyHex == "" {
		return fmt.Errorf("--server-pubkey is required: the client verifies every frame against the server's known long-term key")
	}
	serverPub, err := hex.DecodeString(serverPubKeyHex)
	if err != nil {
		return fmt.Errorf("decode --server-pubkey: %w", err)
	}

	keys, err := identity.Generate()
	if err != nil {
		return fmt.Errorf("generate client identity: %w", err)
	}

	binder, err := client.Dial(addr, maxMessageSize, keys, serverPub)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer binder.Close()

	state, err := bootstrap.RunClientSession(binder, nonceSize, bootstrap.ClientDeps{
		Log:          log,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})
	if err != nil {
		return fmt.Errorf("bootstrap sync failed: %w", err)
	}

	fmt.Printf("synced final state at slot %s\n", state.Slot)
	fmt.Printf("  ledger entries:      %d\n", len(state.Ledger))
	fmt.Printf("  async pool entries:  %d\n", len(state.Pool))
	fmt.Printf("  executed ops:        %d\n", len(state.ExecOps))
	fmt.Printf("  PoS cycle records:   %d\n", len(state.Cycles))
	fmt.Printf("  deferred credits:    %d\n", len(state.Credits))
	return nil
}
