package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/fairweather/internal/gateway"
	"github.com/user/fairweather/internal/types"
)

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("conversation", "cli:local", "conversation id")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant from the terminal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		a.gateway.Start(ctx)
		defer a.gateway.Stop()

		conv, _ := cmd.Flags().GetString("conversation")
		id := types.ConversationID(conv)
		if !strings.Contains(conv, ":") {
			id = types.NewConversationID("cli", conv)
		}
		return chatLoop(ctx, a.gateway, id, os.Stdin, os.Stdout)
	},
}

// chatLoop reads one message per line until EOF or /quit.
func chatLoop(ctx context.Context, gw *gateway.Gateway, id types.ConversationID, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Ask about the weather or schedule something. /cancel clears a pending question, /quit exits.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/cancel":
			gw.Dispatcher().Reset(ctx, id)
			fmt.Fprintln(out, "Cleared.")
			continue
		}

		resp, err := gw.Ask(ctx, id, line)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, resp)
	}
}
