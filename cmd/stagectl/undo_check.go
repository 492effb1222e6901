package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fashion-supplychain/progress-service/internal/domain"
)

var (
	undoScanID    string
	undoActorID   string
	undoActorName string
	undoRescan    bool
	undoAt        string
	undoWindow    time.Duration
)

var undoCheckCmd = &cobra.Command{
	Use:   "undo-check",
	Short: "Check whether a scan may be undone",
	Long: `Evaluate undo eligibility of one scan in the events file.

--at fixes the evaluation time (RFC3339) so exported logs can be checked
as of the moment an operator attempted the undo.`,
	Args: cobra.NoArgs,
	RunE: runUndoCheck,
}

func init() {
	undoCheckCmd.Flags().StringVar(&undoScanID, "scan", "", "Scan id to check")
	undoCheckCmd.Flags().StringVar(&undoActorID, "actor-id", "", "Operator id attempting the undo")
	undoCheckCmd.Flags().StringVar(&undoActorName, "actor-name", "", "Operator name attempting the undo")
	undoCheckCmd.Flags().BoolVar(&undoRescan, "rescan", false, "Apply the rescan rule (same operator only)")
	undoCheckCmd.Flags().StringVar(&undoAt, "at", "", "Evaluation time, RFC3339 (default now)")
	undoCheckCmd.Flags().DurationVar(&undoWindow, "window", domain.DefaultUndoWindow, "Undo window")
	_ = undoCheckCmd.MarkFlagRequired("scan")
}

// undoCheckOutput is printed by the undo-check command
type undoCheckOutput struct {
	ScanID  string `json:"scanId"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

func runUndoCheck(cmd *cobra.Command, _ []string) error {
	now := time.Now
	if undoAt != "" {
		at, err := time.Parse(time.RFC3339, undoAt)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		now = func() time.Time { return at }
	}

	s, err := loadSnapshot()
	if err != nil {
		return err
	}
	event, ok := s.log.Find(undoScanID)
	if !ok {
		return fmt.Errorf("scan %s not found in %s", undoScanID, eventsPath)
	}

	guard := domain.NewUndoGuard(undoWindow, now)
	var decision domain.UndoDecision
	if undoRescan {
		decision = guard.EvaluateRescan(event, domain.Actor{ID: undoActorID, Name: undoActorName}, s.unit.Status, s.log, s.catalog)
	} else {
		decision = guard.Evaluate(event, s.unit.Status, s.log, s.catalog)
	}

	return writeJSON(cmd.OutOrStdout(), undoCheckOutput{
		ScanID:  event.ID,
		Allowed: decision.Allowed,
		Reason:  string(decision.Reason),
		Message: decision.Reason.Message(),
	})
}
