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

var (
	auditAccount string
	auditLimit   int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent vendor operations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if auditAccount != "" {
			q.Set("account_id", auditAccount)
		}
		if auditLimit > 0 {
			q.Set("limit", strconv.Itoa(auditLimit))
		}
		path := "/api/v1/audit"
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
		var entries []struct {
			Time       time.Time `json:"time"`
			AccountID  string    `json:"account_id"`
			Op         string    `json:"op"`
			Success    bool      `json:"success"`
			StatusCode int       `json:"status_code"`
			Detail     string    `json:"detail"`
		}
		if err := json.Unmarshal(data, &entries); err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No audit entries")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tACCOUNT\tOP\tOK\tSTATUS\tDETAIL")
		for _, e := range entries {
			ok := "yes"
			if !e.Success {
				ok = "no"
			}
			code := ""
			if e.StatusCode != 0 {
				code = strconv.Itoa(e.StatusCode)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Time.Local().Format("2006-01-02 15:04:05"),
				e.AccountID, e.Op, ok, code, e.Detail)
		}
		w.Flush()
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditAccount, "account", "", "Only entries for this account id")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum entries to return")

	addClientFlags(auditCmd)
	rootCmd.AddCommand(auditCmd)
}
