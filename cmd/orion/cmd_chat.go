package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ArielSltty/Orion/internal/domain"
)

var chatSession string

var chatCmd = &cobra.Command{
	Use:   "chat [message...]",
	Short: "Ask the simulation assistant",
	Long: `Sends a message to the simulation assistant. Asking for a Monte Carlo
simulation returns a parameter template that can be saved and passed to
"orion simulate --params".

Example:
  orion chat run a monte carlo simulation > params.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Log in if needed and print your principal",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "Conversation id (assigned by the service when empty)")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a := newApp(cfg, logger, nil)
	reply, err := a.rpc.SendChatMessage(ctx, domain.ChatMessage{
		SessionID: chatSession,
		Text:      strings.Join(args, " "),
		Timestamp: time.Now().UnixNano(),
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(os.Stdout, reply)
	}
	fmt.Fprintf(os.Stderr, "[session %s]\n", reply.SessionID)

	if reply.ParameterTemplate == nil {
		fmt.Println(reply.Response)
		return nil
	}
	// The template goes to stdout as YAML so it can be redirected to a preset.
	fmt.Fprintln(os.Stderr, reply.Response)
	return writeTemplate(os.Stdout, *reply.ParameterTemplate)
}

func runWhoami(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a := newApp(cfg, logger, nil)
	principal, err := a.gate.EnsureAuthenticated(ctx)
	if err != nil {
		return err
	}
	fmt.Println(principal)
	return nil
}

func writeTemplate(w io.Writer, p domain.SimulationParameters) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(domain.InputFrom(p))
}
