package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run an operation across many accounts",
}

var batchWait bool

var batchRefreshCmd = &cobra.Command{
	Use:   "refresh <account-id>...",
	Short: "Force token refreshes across accounts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch("refresh-tokens", args)
	},
}

var batchResetCreditsCmd = &cobra.Command{
	Use:   "reset-credits <account-id>...",
	Short: "Reset credit pools across accounts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch("reset-credits", args)
	},
}

func runBatch(op string, ids []string) error {
	body := map[string]interface{}{"op": op, "ids": ids}
	data, status, err := apiRequest("POST", "/api/v1/batches", body)
	if err != nil {
		return err
	}
	exitOnError(data, status)

	var started struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(data, &started); err != nil {
		return err
	}

	if !batchWait {
		if outputJSON {
			printJSON(data)
			return nil
		}
		fmt.Printf("Batch task started: %s\n", started.TaskID)
		return nil
	}

	task, err := pollBatch(started.TaskID)
	if err != nil {
		return err
	}
	if outputJSON {
		b, _ := json.MarshalIndent(task, "", "  ")
		fmt.Println(string(b))
		return nil
	}

	fmt.Printf("Batch %s: %d/%d succeeded\n", started.TaskID, task.Succeeded, task.Total)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tOK\tMS\tERROR")
	for _, r := range task.Results {
		ok := "yes"
		if !r.Success {
			ok = "no"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.AccountID, ok, r.DurationMs, r.Error)
	}
	w.Flush()
	return nil
}

type batchTaskView struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Results   []struct {
		AccountID  string `json:"account_id"`
		Success    bool   `json:"success"`
		Error      string `json:"error"`
		DurationMs int64  `json:"duration_ms"`
	} `json:"results"`
}

func pollBatch(id string) (*batchTaskView, error) {
	for {
		data, status, err := apiRequest("GET", "/api/v1/batches/"+id, nil)
		if err != nil {
			return nil, err
		}
		exitOnError(data, status)

		var task batchTaskView
		if err := json.Unmarshal(data, &task); err != nil {
			return nil, err
		}
		if task.Status == "completed" {
			return &task, nil
		}
		time.Sleep(500 * time.Millisecond)
	}
}

var batchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List batch tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, status, err := apiRequest("GET", "/api/v1/batches", nil)
		if err != nil {
			return err
		}
		exitOnError(data, status)

		if outputJSON {
			printJSON(data)
			return nil
		}
		var tasks []struct {
			ID        string    `json:"id"`
			Status    string    `json:"status"`
			Op        string    `json:"op"`
			Total     int       `json:"total"`
			Succeeded int       `json:"succeeded"`
			CreatedAt time.Time `json:"created_at"`
		}
		if err := json.Unmarshal(data, &tasks); err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("No batch tasks")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tOP\tSTATUS\tOK/TOTAL\tSTARTED")
		for _, t := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
				t.ID, t.Op, t.Status, t.Succeeded, t.Total,
				t.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		w.Flush()
		return nil
	},
}

func init() {
	batchRefreshCmd.Flags().BoolVar(&batchWait, "wait", false, "Wait for the task to complete and print per-account results")
	batchResetCreditsCmd.Flags().BoolVar(&batchWait, "wait", false, "Wait for the task to complete and print per-account results")

	batchCmd.AddCommand(batchRefreshCmd, batchResetCreditsCmd, batchListCmd)
	addClientFlags(batchCmd, batchRefreshCmd, batchResetCreditsCmd, batchListCmd)
	rootCmd.AddCommand(batchCmd)
}
