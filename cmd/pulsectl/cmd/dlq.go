package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pulsehook/pulsehook/internal/store"
)

// dlqCmd represents the dlq command
var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "List dead letter queue entries",
	Long: `List events that exhausted their retry ceiling and were abandoned.

Example:
  pulsectl dlq --limit 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limitStr, _ := cmd.Flags().GetString("limit")
		limit, err := parseLimit(limitStr)
		if err != nil {
			return err
		}

		path := "/v1/dlq"
		if limit > 0 {
			path += "?limit=" + strconv.Itoa(limit)
		}

		var resp struct {
			DLQ []store.DLQEntry `json:"dlq"`
		}
		if err := getJSON(path, &resp); err != nil {
			return fmt.Errorf("failed to list DLQ: %w", err)
		}

		if outputJSON {
			printOutput(resp)
			return nil
		}

		if len(resp.DLQ) == 0 {
			fmt.Println("Dead letter queue is empty")
			return nil
		}
		fmt.Println("Dead letter queue entries:")
		for _, e := range resp.DLQ {
			fmt.Printf("\n  Event ID: %s\n", e.EventID)
			fmt.Printf("  Reason: %s\n", e.Reason)
			fmt.Printf("  Dead lettered: %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.Flags().String("limit", "", "maximum number of results")
}
