// Package cli provides the intakectl developer command-line interface.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	natsURL     string
	turnSubject string
	timeout     time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "intakectl",
	Short: "Talk to the council intake service from a terminal",
	Long: `intakectl drives the council intake dialogue over NATS, the same way the
telephony gateway does, and inspects the service catalog.

Examples:
  intakectl chat --session dev-1
  intakectl turn --session dev-1 "I need to report a pothole"
  intakectl catalog --file services.yaml`,
	Version:      Version,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", envOr("NATS_URL", nats.DefaultURL), "NATS server URL")
	rootCmd.PersistentFlags().StringVar(&turnSubject, "subject", envOr("NATS_TURN_SUBJECT", "intake.turn"), "turn request subject")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "per-turn reply timeout")

	rootCmd.AddCommand(turnCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(catalogCmd)
}

func connect() (*nats.Conn, error) {
	conn, err := nats.Connect(natsURL, nats.Name("intakectl"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return conn, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
