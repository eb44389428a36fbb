package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh <account-id>",
	Short: "Force a token refresh for an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, status, err := apiRequest("POST", "/api/v1/accounts/"+args[0]+"/refresh", nil)
		if err != nil {
			return err
		}
		exitOnError(data, status)

		if outputJSON {
			printJSON(data)
			return nil
		}
		var acct struct {
			Email          string `json:"email"`
			TokenExpiresAt string `json:"token_expires_at"`
		}
		json.Unmarshal(data, &acct)
		fmt.Printf("Token refreshed for %s (expires %s)\n", acct.Email, acct.TokenExpiresAt)
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:   "user <account-id>",
	Short: "Fetch the account's live vendor profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, status, err := apiRequest("GET", "/api/v1/accounts/"+args[0]+"/user", nil)
		if err != nil {
			return err
		}
		exitOnError(data, status)

		if outputJSON {
			printJSON(data)
			return nil
		}
		var p struct {
			Email              string `json:"email"`
			PlanName           string `json:"plan_name"`
			CreditsUsed        int64  `json:"credits_used"`
			CreditsTotal       int64  `json:"credits_total"`
			SubscriptionActive bool   `json:"subscription_active"`
			TeamOwner          bool   `json:"team_owner"`
			Disabled           bool   `json:"disabled"`
			DecodeError        string `json:"decode_error"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		fmt.Printf("Email:        %s\n", p.Email)
		fmt.Printf("Plan:         %s\n", p.PlanName)
		fmt.Printf("Credits:      %d/%d\n", p.CreditsUsed, p.CreditsTotal)
		fmt.Printf("Subscription: active=%t\n", p.SubscriptionActive)
		fmt.Printf("Team owner:   %t\n", p.TeamOwner)
		if p.Disabled {
			fmt.Println("Disabled:     yes")
		}
		if p.DecodeError != "" {
			fmt.Printf("Decode error: %s\n", p.DecodeError)
		}
		return nil
	},
}

var seatsAttempts int

var seatsCmd = &cobra.Command{
	Use:   "seats <account-id> <count>",
	Short: "Set the team seat count",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid seat count %q", args[1])
		}
		body := map[string]interface{}{"seat_count": count}
		if seatsAttempts > 0 {
			body["attempts"] = seatsAttempts
		}
		data, status, err := apiRequest("POST", "/api/v1/accounts/"+args[0]+"/seats", body)
		if err != nil {
			return err
		}
		exitOnError(data, status)

		if outputJSON {
			printJSON(data)
			return nil
		}
		var res struct {
			Success  bool `json:"success"`
			Attempts []struct {
				Attempt    int    `json:"attempt"`
				StatusCode int    `json:"status_code"`
				Error      string `json:"error"`
			} `json:"attempts"`
		}
		if err := json.Unmarshal(data, &res); err != nil {
			return err
		}
		if res.Success {
			fmt.Printf("Seat count set to %d (%d attempt(s))\n", count, len(res.Attempts))
			return nil
		}
		fmt.Printf("Seat update failed after %d attempt(s):\n", len(res.Attempts))
		for _, a := range res.Attempts {
			if a.Error != "" {
				fmt.Printf("  attempt %d: %s\n", a.Attempt, a.Error)
				continue
			}
			fmt.Printf("  attempt %d: status %d\n", a.Attempt, a.StatusCode)
		}
		return nil
	},
}

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Manage team credit pools",
}

var creditsResetSeats int

var creditsResetCmd = &cobra.Command{
	Use:   "reset <account-id>",
	Short: "Reset the credit pool by bouncing the seat count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var body interface{}
		if creditsResetSeats > 0 {
			body = map[string]int{"seat_count": creditsResetSeats}
		}
		data, status, err := apiRequest("POST", "/api/v1/accounts/"+args[0]+"/credits/reset", body)
		if err != nil {
			return err
		}
		exitOnError(data, status)

		if outputJSON {
			printJSON(data)
			return nil
		}
		var res struct {
			SeatCountUsed int `json:"seat_count_used"`
			Update        struct {
				Success bool `json:"success"`
			} `json:"update"`
		}
		if err := json.Unmarshal(data, &res); err != nil {
			return err
		}
		if res.Update.Success {
			fmt.Printf("Credits reset (seat count bounced to %d)\n", res.SeatCountUsed)
		} else {
			fmt.Printf("Credit reset incomplete; seat update to %d failed\n", res.SeatCountUsed)
		}
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage the account's subscription plan",
}

var (
	planPeriod  string
	planPreview bool
)

var planUpdateCmd = &cobra.Command{
	Use:   "update <account-id> <tier>",
	Short: "Switch the account to a different plan tier",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]interface{}{"tier": args[1]}
		if planPeriod != "" {
			body["period"] = planPeriod
		}
		if planPreview {
			body["preview"] = true
		}
		data, status, err := apiRequest("POST", "/api/v1/accounts/"+args[0]+"/plan", body)
		if err != nil {
			return err
		}
		exitOnError(data, status)
		if outputJSON {
			printJSON(data)
			return nil
		}
		if planPreview {
			printJSON(data)
			return nil
		}
		fmt.Printf("Plan changed to %s\n", args[1])
		return nil
	},
}

var cancelReason string

var planCancelCmd = &cobra.Command{
	Use:   "cancel <account-id>",
	Short: "Cancel the subscription at period end",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var body interface{}
		if cancelReason != "" {
			body = map[string]string{"reason": cancelReason}
		}
		data, status, err := apiRequest("POST", "/api/v1/accounts/"+args[0]+"/plan/cancel", body)
		if err != nil {
			return err
		}
		exitOnError(data, status)
		fmt.Println("Plan cancellation scheduled")
		return nil
	},
}

var planResumeCmd = &cobra.Command{
	Use:   "resume <account-id>",
	Short: "Revert a pending cancellation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, status, err := apiRequest("POST", "/api/v1/accounts/"+args[0]+"/plan/resume", nil)
		if err != nil {
			return err
		}
		exitOnError(data, status)
		fmt.Println("Plan cancellation reverted")
		return nil
	},
}

var (
	subscribeSeats    int
	subscribeTeamName string
	subscribeTrial    bool
)

var planSubscribeCmd = &cobra.Command{
	Use:   "subscribe <account-id> <tier>",
	Short: "Start a subscription checkout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]interface{}{"tier": args[1]}
		if planPeriod != "" {
			body["period"] = planPeriod
		}
		if subscribeSeats > 0 {
			body["seats"] = subscribeSeats
		}
		if subscribeTeamName != "" {
			body["team_name"] = subscribeTeamName
		}
		if subscribeTrial {
			body["trial"] = true
		}
		data, status, err := apiRequest("POST", "/api/v1/accounts/"+args[0]+"/plan/subscribe", body)
		if err != nil {
			return err
		}
		exitOnError(data, status)

		if outputJSON {
			printJSON(data)
			return nil
		}
		var res struct {
			CheckoutURL string `json:"checkout_url"`
		}
		json.Unmarshal(data, &res)
		if res.CheckoutURL != "" {
			fmt.Printf("Checkout URL: %s\n", res.CheckoutURL)
		} else {
			fmt.Println("Subscription started (no checkout URL returned)")
		}
		return nil
	},
}

func init() {
	seatsCmd.Flags().IntVar(&seatsAttempts, "attempts", 0, "Retry attempts (0 = daemon's configured retry count)")
	creditsResetCmd.Flags().IntVar(&creditsResetSeats, "seats", 0, "Seat count to bounce to (0 = rotate through configured options)")
	planUpdateCmd.Flags().StringVar(&planPeriod, "period", "", "Billing period (monthly or yearly)")
	planUpdateCmd.Flags().BoolVar(&planPreview, "preview", false, "Preview the change without applying it")
	planCancelCmd.Flags().StringVar(&cancelReason, "reason", "", "Cancellation reason")
	planSubscribeCmd.Flags().StringVar(&planPeriod, "period", "", "Billing period (monthly or yearly)")
	planSubscribeCmd.Flags().IntVar(&subscribeSeats, "seats", 0, "Initial seat count")
	planSubscribeCmd.Flags().StringVar(&subscribeTeamName, "team-name", "", "Team name for the new subscription")
	planSubscribeCmd.Flags().BoolVar(&subscribeTrial, "trial", false, "Start as a trial")

	creditsCmd.AddCommand(creditsResetCmd)
	planCmd.AddCommand(planUpdateCmd, planCancelCmd, planResumeCmd, planSubscribeCmd)

	addClientFlags(refreshCmd, userCmd, seatsCmd, creditsCmd, creditsResetCmd,
		planCmd, planUpdateCmd, planCancelCmd, planResumeCmd, planSubscribeCmd)
	rootCmd.AddCommand(refreshCmd, userCmd, seatsCmd, creditsCmd, planCmd)
}
