package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// updateCmd triggers a regeneration run
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Trigger a regeneration run",
	Long: `Trigger a regeneration run across every target language.

A run already in flight is cancelled and unwound before the new one starts.
The command returns immediately; use 'smithctl progress' to follow the run.

Examples:
  # Trigger a run
  smithctl update

  # Trigger and wait for completion
  smithctl update --wait`,
	RunE: runUpdate,
}

var updateWait bool

func init() {
	updateCmd.Flags().BoolVar(&updateWait, "wait", false, "poll progress until the run terminates")
}

// StartUpdateResponse matches internal/httpapi StartUpdateResponse
type StartUpdateResponse struct {
	Accepted  bool      `json:"accepted"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

// ProgressResponse matches internal/update Progress
type ProgressResponse struct {
	Fraction  float64   `json:"fraction"`
	Message   string    `json:"message"`
	IsRunning bool      `json:"is_running"`
	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error,omitempty"`
}

func runUpdate(cmd *cobra.Command, args []string) error {
	var resp StartUpdateResponse
	if err := postJSON("/api/v1/update", nil, &resp); err != nil {
		return err
	}
	fmt.Printf("Run %s accepted\n", resp.RunID)

	if !updateWait {
		return nil
	}

	for {
		time.Sleep(time.Second)

		var progress ProgressResponse
		if err := getJSON("/api/v1/progress", &progress); err != nil {
			return err
		}
		fmt.Printf("%3.0f%% %s\n", progress.Fraction*100, progress.Message)

		if !progress.IsRunning {
			if progress.Error != "" {
				return fmt.Errorf("run failed: %s", progress.Error)
			}
			return nil
		}
	}
}

// progressCmd shows the current run's progress
var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show progress of the current or most recent run",
	RunE:  runProgress,
}

func runProgress(cmd *cobra.Command, args []string) error {
	var progress ProgressResponse
	if err := getJSON("/api/v1/progress", &progress); err != nil {
		return err
	}

	state := "idle"
	if progress.IsRunning {
		state = "running"
	}
	fmt.Printf("State:    %s\n", state)
	fmt.Printf("Progress: %.0f%%\n", progress.Fraction*100)
	fmt.Printf("Message:  %s\n", progress.Message)
	if progress.Error != "" {
		fmt.Printf("Error:    %s\n", progress.Error)
	}
	return nil
}
