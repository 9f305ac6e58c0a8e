package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pulsehook/pulsehook/internal/store"
)

// accountCmd represents the account command
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage connected social accounts",
	Long:  `List connected accounts, refresh access tokens, and browse per-account activity.`,
}

// accountListCmd represents the account list command
var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Accounts []store.Account `json:"accounts"`
		}
		if err := getJSON("/v1/accounts", &resp); err != nil {
			return fmt.Errorf("failed to list accounts: %w", err)
		}

		if outputJSON {
			printOutput(resp)
			return nil
		}

		if len(resp.Accounts) == 0 {
			fmt.Println("No accounts connected")
			return nil
		}
		for _, a := range resp.Accounts {
			fmt.Printf("%s  @%-20s %-10s %s\n", a.ID, a.Username, a.Status, a.Platform)
			if a.TokenExpiresAt != nil {
				fmt.Printf("    token expires: %s\n", a.TokenExpiresAt.Format("2006-01-02 15:04:05"))
			}
			if a.StatusMessage != "" {
				fmt.Printf("    status: %s\n", a.StatusMessage)
			}
		}
		return nil
	},
}

// accountGetCmd represents the account get command
var accountGetCmd = &cobra.Command{
	Use:   "get [account-id]",
	Short: "Get a single account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var acct store.Account
		if err := getJSON("/v1/accounts/"+args[0], &acct); err != nil {
			return fmt.Errorf("failed to get account: %w", err)
		}

		if outputJSON {
			printOutput(acct)
			return nil
		}

		fmt.Printf("Account %s:\n", acct.ID)
		fmt.Printf("  Username: @%s\n", acct.Username)
		fmt.Printf("  Platform: %s (%s)\n", acct.Platform, acct.PlatformUserID)
		fmt.Printf("  Status: %s\n", acct.Status)
		if acct.StatusMessage != "" {
			fmt.Printf("  Status message: %s\n", acct.StatusMessage)
		}
		if acct.TokenExpiresAt != nil {
			fmt.Printf("  Token expires: %s\n", acct.TokenExpiresAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("  Notify comments: %v\n", acct.Preferences.NotifyComments)
		fmt.Printf("  Notify mentions: %v\n", acct.Preferences.NotifyMentions)
		fmt.Printf("  Notify messages: %v\n", acct.Preferences.NotifyMessages)
		fmt.Printf("  Notify milestones: %v\n", acct.Preferences.NotifyMilestones)
		return nil
	},
}

// accountRefreshCmd represents the account refresh command
var accountRefreshCmd = &cobra.Command{
	Use:   "refresh [account-id]",
	Short: "Refresh an account's access token",
	Long: `Ask the platform to extend the account's long-lived access token.

Example:
  pulsectl account refresh 9a8b7c6d-5e4f-4a3b-2c1d-0e9f8a7b6c5d`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Status         string `json:"status"`
			TokenExpiresAt string `json:"token_expires_at"`
		}
		if err := postJSON("/v1/accounts/"+args[0]+"/refresh", nil, &resp); err != nil {
			return fmt.Errorf("failed to refresh token: %w", err)
		}

		if outputJSON {
			printOutput(resp)
			return nil
		}

		fmt.Println("Token refreshed")
		fmt.Printf("  Expires: %s\n", resp.TokenExpiresAt)
		return nil
	},
}

// activityCmd builds one per-collection listing command (comments, mentions, ...).
func activityCmd(name, short string) *cobra.Command {
	c := &cobra.Command{
		Use:   name + " [account-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limitStr, _ := cmd.Flags().GetString("limit")
			limit, err := parseLimit(limitStr)
			if err != nil {
				return err
			}

			path := "/v1/accounts/" + args[0] + "/" + name
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}

			var resp map[string]interface{}
			if err := getJSON(path, &resp); err != nil {
				return fmt.Errorf("failed to list %s: %w", name, err)
			}
			printOutput(resp)
			return nil
		},
	}
	c.Flags().String("limit", "", "maximum number of results")
	return c
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountGetCmd)
	accountCmd.AddCommand(accountRefreshCmd)
	accountCmd.AddCommand(activityCmd("comments", "List stored comments for an account"))
	accountCmd.AddCommand(activityCmd("mentions", "List stored mentions for an account"))
	accountCmd.AddCommand(activityCmd("messages", "List stored direct messages for an account"))
	accountCmd.AddCommand(activityCmd("milestones", "List reached milestones for an account"))
}
