package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

// TargetStatus matches internal/review TargetStatus
type TargetStatus struct {
	ID                 string `json:"id"`
	HasStagedChanges   bool   `json:"has_staged_changes"`
	HasUnstagedChanges bool   `json:"has_unstaged_changes"`
}

// ListTargetsResponse matches internal/httpapi ListTargetsResponse
type ListTargetsResponse struct {
	Targets []TargetStatus `json:"targets"`
}

// StagedStatusResponse matches internal/workspace StagedStatus
type StagedStatusResponse struct {
	Files              map[string]string `json:"files"`
	HasStagedChanges   bool              `json:"has_staged_changes"`
	HasUnstagedChanges bool              `json:"has_unstaged_changes"`
}

// CommitResult matches internal/review CommitResult
type CommitResult struct {
	Committed    bool   `json:"committed"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
}

// RevertResult matches internal/review RevertResult
type RevertResult struct {
	Reverted bool `json:"reverted"`
}

// targetsCmd lists every target with its review state
var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List targets and their review state",
	RunE:  runTargets,
}

func runTargets(cmd *cobra.Command, args []string) error {
	var resp ListTargetsResponse
	if err := getJSON("/api/v1/targets", &resp); err != nil {
		return err
	}

	for _, t := range resp.Targets {
		state := "clean"
		switch {
		case t.HasStagedChanges:
			state = "pending review"
		case t.HasUnstagedChanges:
			state = "dirty"
		}
		fmt.Printf("%-12s %s\n", t.ID, state)
	}
	return nil
}

// statusCmd shows the staged files of one target
var statusCmd = &cobra.Command{
	Use:   "status <target>",
	Short: "Show the staged changes of a target",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	var resp StagedStatusResponse
	if err := getJSON(fmt.Sprintf("/api/v1/targets/%s/status", args[0]), &resp); err != nil {
		return err
	}

	if !resp.HasStagedChanges {
		fmt.Println("Nothing staged")
		return nil
	}

	paths := make([]string, 0, len(resp.Files))
	for p := range resp.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Printf("%-10s %s\n", resp.Files[p], p)
	}
	return nil
}

// approveCmd commits a target's staged changes
var approveCmd = &cobra.Command{
	Use:   "approve <target>",
	Short: "Approve a target's staged changes (creates a checkpoint)",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

var approveMessage string

func init() {
	approveCmd.Flags().StringVarP(&approveMessage, "message", "m", "", "checkpoint message")
}

func runApprove(cmd *cobra.Command, args []string) error {
	body := map[string]string{"message": approveMessage}

	var resp CommitResult
	if err := postJSON(fmt.Sprintf("/api/v1/targets/%s/approve", args[0]), body, &resp); err != nil {
		return err
	}

	if !resp.Committed {
		fmt.Println("Nothing staged; no checkpoint created")
		return nil
	}
	fmt.Printf("Checkpoint %s created\n", resp.CheckpointID)
	return nil
}

// rejectCmd reverts a target's staged changes
var rejectCmd = &cobra.Command{
	Use:   "reject <target>",
	Short: "Reject a target's staged changes (reverts to the last checkpoint)",
	Args:  cobra.ExactArgs(1),
	RunE:  runReject,
}

func runReject(cmd *cobra.Command, args []string) error {
	var resp RevertResult
	if err := postJSON(fmt.Sprintf("/api/v1/targets/%s/reject", args[0]), nil, &resp); err != nil {
		return err
	}

	if !resp.Reverted {
		fmt.Println("Nothing staged; workspace untouched")
		return nil
	}
	fmt.Println("Reverted to last checkpoint")
	return nil
}

// saveCmd writes a file into a workspace and stages it
var saveCmd = &cobra.Command{
	Use:   "save <target|english> <workspace-path> [file]",
	Short: "Save a file into a workspace and stage it",
	Long: `Save a file into a target or the specification workspace and stage
the whole workspace.

Examples:
  # Save the specification from a local file
  smithctl save english spec.md ./spec.md

  # Save from stdin
  cat spec.md | smithctl save english spec.md -`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runSave,
}

// SaveFileRequest matches internal/httpapi SaveFileRequest
type SaveFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// SaveFileResponse matches internal/httpapi SaveFileResponse
type SaveFileResponse struct {
	Saved bool `json:"saved"`
}

func runSave(cmd *cobra.Command, args []string) error {
	var content []byte
	var err error

	if len(args) < 3 || args[2] == "-" {
		content, err = readStdin()
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[2])
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", args[2], err)
		}
	}

	path := fmt.Sprintf("/api/v1/targets/%s/files", args[0])
	if args[0] == "english" {
		path = "/api/v1/english/files"
	}

	var resp SaveFileResponse
	if err := postJSON(path, SaveFileRequest{Path: args[1], Content: string(content)}, &resp); err != nil {
		return err
	}
	fmt.Printf("Saved %s\n", args[1])
	return nil
}
