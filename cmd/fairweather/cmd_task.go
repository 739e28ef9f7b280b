package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/fairweather/internal/scheduler"
	"github.com/user/fairweather/internal/state"
	"github.com/user/fairweather/internal/types"
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskRemoveCmd, taskEnableCmd, taskDisableCmd)

	taskAddCmd.Flags().String("name", "", "briefing name (required)")
	taskAddCmd.Flags().String("conversation", "", "conversation id, e.g. telegram:12345 (required)")
	taskAddCmd.Flags().String("location", "", "place to report on; defaults to the fallback location")
	taskAddCmd.Flags().String("prompt", "", "custom message instead of the default weather question")
	taskAddCmd.Flags().String("schedule", "", "cron schedule; empty means webhook only")
	_ = taskAddCmd.MarkFlagRequired("name")
	_ = taskAddCmd.MarkFlagRequired("conversation")
}

func briefingStore() *state.BriefingStore {
	cfg := loadConfig()
	return state.NewBriefingStore(filepath.Join(cfg.DataDir, "briefings.json"))
}

var taskCmd = &cobra.Command{
	Use:     "task",
	Aliases: []string{"briefing"},
	Short:   "Manage scheduled weather briefings",
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a briefing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		conv, _ := cmd.Flags().GetString("conversation")
		location, _ := cmd.Flags().GetString("location")
		prompt, _ := cmd.Flags().GetString("prompt")
		schedule, _ := cmd.Flags().GetString("schedule")

		if schedule != "" {
			if err := scheduler.ValidateSchedule(schedule); err != nil {
				return err
			}
		}

		b := &state.Briefing{
			Name:           name,
			ConversationID: types.ConversationID(conv),
			Location:       location,
			Prompt:         prompt,
			Schedule:       schedule,
			Enabled:        true,
		}
		if err := briefingStore().Add(b); err != nil {
			return fmt.Errorf("add briefing: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Briefing %q added. Run `fairweather reload` if serve is running.\n", name)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List briefings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		briefings, err := briefingStore().List()
		if err != nil {
			return fmt.Errorf("list briefings: %w", err)
		}
		if len(briefings) == 0 {
			fmt.Println("No briefings configured.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSCHEDULE\tENABLED\tCONVERSATION\tMESSAGE")
		for _, b := range briefings {
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n", b.Name, b.Schedule, b.Enabled, b.ConversationID, b.Utterance())
		}
		return w.Flush()
	},
}

var taskRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a briefing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := briefingStore().Remove(args[0]); err != nil {
			return fmt.Errorf("remove briefing: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Briefing %q removed.\n", args[0])
		return nil
	},
}

var taskEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a briefing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := briefingStore().SetEnabled(args[0], true); err != nil {
			return fmt.Errorf("enable briefing: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Briefing %q enabled.\n", args[0])
		return nil
	},
}

var taskDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a briefing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := briefingStore().SetEnabled(args[0], false); err != nil {
			return fmt.Errorf("disable briefing: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Briefing %q disabled.\n", args[0])
		return nil
	},
}
