package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage stored accounts",
}

var (
	listSearch   string
	listDisabled string
	listLimit    int
	listOffset   int
)

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if listSearch != "" {
			q.Set("search", listSearch)
		}
		if listDisabled != "" {
			q.Set("disabled", listDisabled)
		}
		if listLimit > 0 {
			q.Set("limit", strconv.Itoa(listLimit))
		}
		if listOffset > 0 {
			q.Set("offset", strconv.Itoa(listOffset))
		}
		path := "/api/v1/accounts"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		data, status, err := apiRequest("GET", path, nil)
		if err != nil {
			return err
		}
		exitOnError(data, status)

		if outputJSON {
			printJSON(data)
			return nil
		}

		var accounts []struct {
			ID             string     `json:"id"`
			Email          string     `json:"email"`
			PlanName       string     `json:"plan_name"`
			CreditsUsed    int64      `json:"credits_used"`
			CreditsTotal   int64      `json:"credits_total"`
			LastSeatCount  int        `json:"last_seat_count"`
			Disabled       bool       `json:"disabled"`
			HasToken       bool       `json:"has_token"`
			TokenExpiresAt *time.Time `json:"token_expires_at"`
		}
		if err := json.Unmarshal(data, &accounts); err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEMAIL\tPLAN\tCREDITS\tSEATS\tTOKEN\tDISABLED")
		for _, a := range accounts {
			token := "-"
			if a.HasToken {
				token = "yes"
				if a.TokenExpiresAt != nil {
					token = a.TokenExpiresAt.Local().Format("2006-01-02 15:04")
				}
			}
			disabled := ""
			if a.Disabled {
				disabled = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%s\t%s\n",
				a.ID, a.Email, a.PlanName,
				a.CreditsUsed, a.CreditsTotal, a.LastSeatCount,
				token, disabled,
			)
		}
		w.Flush()
		return nil
	},
}

var (
	addPassword     string
	addRefreshToken string
	addAccessToken  string
	addVendorKey    string
	addNote         string
)

var accountsAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Register an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]interface{}{
			"email": args[0],
		}
		if addPassword != "" {
			body["password"] = addPassword
		}
		if addRefreshToken != "" {
			body["refresh_token"] = addRefreshToken
		}
		if addAccessToken != "" {
			body["access_token"] = addAccessToken
		}
		if addVendorKey != "" {
			body["api_key"] = addVendorKey
		}
		if addNote != "" {
			body["note"] = addNote
		}

		data, status, err := apiRequest("POST", "/api/v1/accounts", body)
		if err != nil {
			return err
		}
		exitOnError(data, status)

		if outputJSON {
			printJSON(data)
			return nil
		}
		var acct map[string]interface{}
		json.Unmarshal(data, &acct)
		fmt.Printf("Account added: %s (%s)\n", acct["id"], acct["email"])
		return nil
	},
}

var accountsShowCmd = &cobra.Command{
	Use:   "show <account-id>",
	Short: "Show full account detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, status, err := apiRequest("GET", "/api/v1/accounts/"+args[0], nil)
		if err != nil {
			return err
		}
		exitOnError(data, status)
		printJSON(data)
		return nil
	},
}

var (
	rmUpstream bool
	rmConfirm  bool
)

var accountsRmCmd = &cobra.Command{
	Use:   "rm <account-id>",
	Short: "Remove a stored account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/v1/accounts/" + args[0]
		if rmUpstream {
			if !rmConfirm {
				return fmt.Errorf("use --confirm to also delete the vendor account for %s", args[0])
			}
			path += "?upstream=true"
		}
		data, status, err := apiRequest("DELETE", path, nil)
		if err != nil {
			return err
		}
		exitOnError(data, status)
		if rmUpstream {
			fmt.Println("Account and vendor account deleted")
		} else {
			fmt.Println("Account deleted")
		}
		return nil
	},
}

func init() {
	accountsListCmd.Flags().StringVar(&listSearch, "search", "", "Filter by email substring")
	accountsListCmd.Flags().StringVar(&listDisabled, "disabled", "", "Filter by disabled state (true or false)")
	accountsListCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum accounts to return")
	accountsListCmd.Flags().IntVar(&listOffset, "offset", 0, "Offset into the account list")

	accountsAddCmd.Flags().StringVar(&addPassword, "password", "", "Account password (enables re-authentication fallback)")
	accountsAddCmd.Flags().StringVar(&addRefreshToken, "refresh-token", "", "Vendor refresh token")
	accountsAddCmd.Flags().StringVar(&addAccessToken, "access-token", "", "Vendor access token (optional; will be refreshed)")
	accountsAddCmd.Flags().StringVar(&addVendorKey, "vendor-key", "", "Vendor per-account API key, if already known")
	accountsAddCmd.Flags().StringVar(&addNote, "note", "", "Free-form operator note")

	accountsRmCmd.Flags().BoolVar(&rmUpstream, "upstream", false, "Also delete the account on the vendor side")
	accountsRmCmd.Flags().BoolVar(&rmConfirm, "confirm", false, "Confirm vendor account deletion")

	accountsCmd.AddCommand(accountsListCmd, accountsAddCmd, accountsShowCmd, accountsRmCmd)
	addClientFlags(accountsCmd, accountsListCmd, accountsAddCmd, accountsShowCmd, accountsRmCmd)
	rootCmd.AddCommand(accountsCmd)
}
