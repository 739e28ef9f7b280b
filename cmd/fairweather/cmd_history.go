package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/fairweather/internal/calendar"
	"github.com/user/fairweather/internal/state"
	"github.com/user/fairweather/internal/types"
)

func init() {
	rootCmd.AddCommand(historyCmd, eventsCmd)
	historyCmd.Flags().Int("limit", 20, "number of most recent turns to show")
	eventsCmd.Flags().Bool("all", false, "include past events")
	eventsCmd.Flags().Int("limit", 50, "maximum events to show")
}

var historyCmd = &cobra.Command{
	Use:   "history [conversation]",
	Short: "List conversations, or show one conversation's recent turns",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store := state.NewTranscriptStore(cfg.DataDir)
		ctx := context.Background()

		if len(args) == 0 {
			ids, err := store.Conversations()
			if err != nil {
				return fmt.Errorf("list conversations: %w", err)
			}
			if len(ids) == 0 {
				fmt.Println("No conversations recorded.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CONVERSATION\tTURNS")
			for _, id := range ids {
				n, _ := store.Count(ctx, id)
				fmt.Fprintf(w, "%s\t%d\n", id, n)
			}
			return w.Flush()
		}

		limit, _ := cmd.Flags().GetInt("limit")
		turns, err := store.Tail(ctx, types.ConversationID(args[0]), limit)
		if err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}
		if len(turns) == 0 {
			fmt.Printf("No turns for %s.\n", args[0])
			return nil
		}
		loc := cfg.Location()
		for _, t := range turns {
			fmt.Printf("#%d  %s  [%s]\n", t.Seq, t.At.In(loc).Format("2006-01-02 15:04"), t.State)
			fmt.Printf("  user: %s\n", t.Utterance)
			fmt.Printf("  bot:  %s\n", strings.ReplaceAll(t.Response, "\n", "\n        "))
		}
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List events in the local calendar",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if cfg.Calendar.Backend != "local" {
			return fmt.Errorf("calendar backend is %q; events are only listed for the local backend", cfg.Calendar.Backend)
		}
		local, err := calendar.OpenLocal(eventsDBPath(cfg), cfg.EventDuration())
		if err != nil {
			return err
		}
		defer local.Close()

		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")
		from := time.Now()
		if all {
			from = time.Time{}
		}
		events, err := local.List(context.Background(), from, limit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No events.")
			return nil
		}

		loc := cfg.Location()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "START\tEND\tACTIVITY\tLOCATION")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.Start.In(loc).Format("Mon 2 Jan 2006 15:04"),
				e.End.In(loc).Format("15:04"),
				e.Activity,
				e.Location,
			)
		}
		return w.Flush()
	},
}
