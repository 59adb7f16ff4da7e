package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/avvvet/council-intake/internal/models"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var (
	sessionID string
	from      string
)

var turnCmd = &cobra.Command{
	Use:   "turn [utterance]",
	Short: "Send a single utterance and print the reply",
	Long: `Send one turn for a session. Omit the utterance to prime a new session.

Examples:
  intakectl turn --session dev-1
  intakectl turn --session dev-1 "my bins were not collected"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTurn,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Hold an interactive dialogue until the service hangs up",
	RunE:  runChat,
}

func init() {
	for _, cmd := range []*cobra.Command{turnCmd, chatCmd} {
		cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID (random when empty)")
		cmd.Flags().StringVar(&from, "from", "+440000000000", "originating address")
	}
}

func runTurn(cmd *cobra.Command, args []string) error {
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	utterance := ""
	if len(args) == 1 {
		utterance = args[0]
	}

	resp, err := sendTurn(conn, turnSubject, &models.TurnRequest{
		SessionID: sessionOrNew(),
		From:      from,
		Utterance: utterance,
	}, timeout)
	if err != nil {
		return err
	}
	printResponse(cmd.OutOrStdout(), resp)
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	return chat(conn, sessionOrNew(), cmd.InOrStdin(), cmd.OutOrStdout())
}

// chat primes the session, then relays each input line until hangup or EOF.
func chat(conn *nats.Conn, id string, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "session %s\n", id)

	scanner := bufio.NewScanner(in)
	utterance := ""
	for {
		resp, err := sendTurn(conn, turnSubject, &models.TurnRequest{
			SessionID: id,
			From:      from,
			Utterance: utterance,
		}, timeout)
		if err != nil {
			return err
		}
		printResponse(out, resp)
		if resp.Action == models.ActionHangup {
			return nil
		}

		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		utterance = strings.TrimSpace(scanner.Text())
	}
}

func sendTurn(conn *nats.Conn, subject string, request *models.TurnRequest, timeout time.Duration) (*models.TurnResponse, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal turn request: %w", err)
	}

	msg, err := conn.Request(subject, data, timeout)
	if err != nil {
		return nil, fmt.Errorf("send turn: %w", err)
	}

	var resp models.TurnResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("parse turn response: %w", err)
	}
	return &resp, nil
}

func printResponse(out io.Writer, resp *models.TurnResponse) {
	fmt.Fprintf(out, "[%s] %s\n", resp.Stage, resp.Message)
	if resp.ErrorCode != nil {
		fmt.Fprintf(out, "  error: %s", *resp.ErrorCode)
		if resp.ErrorMessage != nil {
			fmt.Fprintf(out, " (%s)", *resp.ErrorMessage)
		}
		fmt.Fprintln(out)
	}
	if resp.Action == models.ActionHangup {
		fmt.Fprintln(out, "  (call ended)")
	}
}

func sessionOrNew() string {
	if sessionID != "" {
		return sessionID
	}
	return "cli-" + uuid.NewString()
}
