package cmd

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pulsehook/pulsehook/internal/event"
)

// eventCmd represents the event command
var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Inspect and replay webhook events",
	Long:  `List stored webhook events, inspect a single event, and replay failed or abandoned events.`,
}

// eventListCmd represents the event list command
var eventListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored events",
	Long: `List stored webhook events, newest first.

Example:
  pulsectl event list --status failed --kind comment --limit 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		kind, _ := cmd.Flags().GetString("kind")
		accountID, _ := cmd.Flags().GetString("account")
		limitStr, _ := cmd.Flags().GetString("limit")

		limit, err := parseLimit(limitStr)
		if err != nil {
			return err
		}

		q := url.Values{}
		if status != "" {
			q.Set("status", status)
		}
		if kind != "" {
			q.Set("kind", kind)
		}
		if accountID != "" {
			q.Set("account_id", accountID)
		}
		if limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}

		path := "/v1/events"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		var resp struct {
			Events []event.Event `json:"events"`
		}
		if err := getJSON(path, &resp); err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}

		if outputJSON {
			printOutput(resp)
			return nil
		}

		if len(resp.Events) == 0 {
			fmt.Println("No events found")
			return nil
		}
		for _, ev := range resp.Events {
			fmt.Printf("%s  %-10s %-10s attempts=%d  %s\n",
				ev.ID, ev.Kind, ev.Status, ev.Attempts,
				ev.OccurredAt.Format("2006-01-02 15:04:05"))
			if ev.LastError != "" {
				fmt.Printf("    last error: %s\n", ev.LastError)
			}
		}
		return nil
	},
}

// eventGetCmd represents the event get command
var eventGetCmd = &cobra.Command{
	Use:   "get [event-id]",
	Short: "Get a single event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ev event.Event
		if err := getJSON("/v1/events/"+args[0], &ev); err != nil {
			return fmt.Errorf("failed to get event: %w", err)
		}

		if outputJSON {
			printOutput(ev)
			return nil
		}

		fmt.Printf("Event %s:\n", ev.ID)
		fmt.Printf("  Kind: %s\n", ev.Kind)
		fmt.Printf("  Priority: %s\n", ev.Priority)
		fmt.Printf("  Status: %s\n", ev.Status)
		fmt.Printf("  Attempts: %d\n", ev.Attempts)
		if ev.AccountID != "" {
			fmt.Printf("  Account: %s\n", ev.AccountID)
		}
		fmt.Printf("  Occurred: %s\n", ev.OccurredAt.Format("2006-01-02 15:04:05"))
		if ev.LastError != "" {
			fmt.Printf("  Last error: %s\n", ev.LastError)
		}
		if ev.LastAttemptAt != nil {
			fmt.Printf("  Last attempt: %s\n", ev.LastAttemptAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("  Payload: %s\n", string(ev.Payload))
		return nil
	},
}

// eventReplayCmd represents the event replay command
var eventReplayCmd = &cobra.Command{
	Use:   "replay [event-id]",
	Short: "Replay an event",
	Long: `Reset an event's attempt counter and publish it to the processing queue again.

Example:
  pulsectl event replay 6f1c9b2e-3d44-4e1a-9f0a-1b2c3d4e5f60`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Status string      `json:"status"`
			Event  event.Event `json:"event"`
		}
		if err := postJSON("/v1/events/"+args[0]+"/replay", nil, &resp); err != nil {
			return fmt.Errorf("failed to replay event: %w", err)
		}

		if outputJSON {
			printOutput(resp)
			return nil
		}

		fmt.Printf("Replayed event: %s\n", resp.Event.ID)
		fmt.Printf("  Kind: %s\n", resp.Event.Kind)
		fmt.Printf("  Status: %s\n", resp.Event.Status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventCmd)
	eventCmd.AddCommand(eventListCmd)
	eventCmd.AddCommand(eventGetCmd)
	eventCmd.AddCommand(eventReplayCmd)

	// Flags for list
	eventListCmd.Flags().String("status", "", "filter by status (received, processing, processed, failed, abandoned)")
	eventListCmd.Flags().String("kind", "", "filter by kind (comment, mention, message, ...)")
	eventListCmd.Flags().String("account", "", "filter by account ID")
	eventListCmd.Flags().String("limit", "", "maximum number of results")
}
