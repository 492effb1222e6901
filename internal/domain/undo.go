package domain

import "time"

// DefaultUndoWindow is how long after a scan it may still be reversed
const DefaultUndoWindow = time.Hour

// MaxScanClockSkew bounds how far a terminal's scan time may run ahead of the server
const MaxScanClockSkew = 5 * time.Minute

// UndoReason enumerates why a scan cannot be undone
type UndoReason string

const (
	UndoAllowed              UndoReason = ""
	UndoNotSuccess           UndoReason = "NOT_SUCCESS"
	UndoSettled              UndoReason = "SETTLED"
	UndoMissingID            UndoReason = "MISSING_ID"
	UndoUnitClosed           UndoReason = "UNIT_CLOSED"
	UndoWindowExpired        UndoReason = "WINDOW_EXPIRED"
	UndoDownstreamProgressed UndoReason = "DOWNSTREAM_PROGRESSED"
	UndoOperatorMismatch     UndoReason = "OPERATOR_MISMATCH"
	UndoScanInFuture         UndoReason = "SCAN_IN_FUTURE"
)

var undoMessages = map[UndoReason]string{
	UndoAllowed:              "scan can be undone",
	UndoNotSuccess:           "only successful scans can be undone",
	UndoSettled:              "scan has been settled for payroll and is immutable",
	UndoMissingID:            "scan has no id to reverse",
	UndoUnitClosed:           "production unit is closed",
	UndoWindowExpired:        "undo window has passed",
	UndoDownstreamProgressed: "a later stage has already been scanned",
	UndoOperatorMismatch:     "only the operator who scanned can return it for rescan",
	UndoScanInFuture:         "scan time is later than the server clock",
}

// Message returns a fixed user-facing description of the reason
func (r UndoReason) Message() string {
	return undoMessages[r]
}

// UndoDecision is the outcome of an eligibility check
type UndoDecision struct {
	Allowed bool       `json:"allowed"`
	Reason  UndoReason `json:"reason,omitempty"`
}

func allow() UndoDecision                 { return UndoDecision{Allowed: true} }
func deny(reason UndoReason) UndoDecision { return UndoDecision{Reason: reason} }

// UndoGuard decides whether a past scan may still be reversed
type UndoGuard struct {
	window time.Duration
	now    func() time.Time
}

// NewUndoGuard creates a guard. Zero values fall back to a one hour window and the wall clock.
func NewUndoGuard(window time.Duration, now func() time.Time) *UndoGuard {
	if window <= 0 {
		window = DefaultUndoWindow
	}
	if now == nil {
		now = time.Now
	}
	return &UndoGuard{window: window, now: now}
}

// Window returns the configured undo window
func (g *UndoGuard) Window() time.Duration { return g.window }

// Evaluate returns the first violated condition in order. The window runs
// from UndoAnchor, and a scan stamped beyond MaxScanClockSkew ahead of now is
// never undoable. The downstream check runs only when a catalog is supplied.
func (g *UndoGuard) Evaluate(event ScanEvent, unitStatus UnitStatus, log *EventLog, catalog *StageCatalog) UndoDecision {
	switch {
	case event.Outcome != OutcomeSuccess || event.UndoneAt != nil:
		return deny(UndoNotSuccess)
	case event.SettlementID != "":
		return deny(UndoSettled)
	case event.ID == "":
		return deny(UndoMissingID)
	case unitStatus.IsTerminal():
		return deny(UndoUnitClosed)
	}
	now, anchor := g.now(), event.UndoAnchor()
	switch {
	case anchor.After(now.Add(MaxScanClockSkew)):
		return deny(UndoScanInFuture)
	case now.Sub(anchor) >= g.window:
		return deny(UndoWindowExpired)
	}
	if g.downstreamProgressed(event, log, catalog) {
		return deny(UndoDownstreamProgressed)
	}
	return allow()
}

// CanUndo is the boolean projection of Evaluate
func (g *UndoGuard) CanUndo(event ScanEvent, unitStatus UnitStatus, log *EventLog, catalog *StageCatalog) bool {
	return g.Evaluate(event, unitStatus, log, catalog).Allowed
}

// EvaluateRescan applies Evaluate and additionally requires the actor to be
// the operator who recorded the scan
func (g *UndoGuard) EvaluateRescan(event ScanEvent, actor Actor, unitStatus UnitStatus, log *EventLog, catalog *StageCatalog) UndoDecision {
	if d := g.Evaluate(event, unitStatus, log, catalog); !d.Allowed {
		return d
	}
	if !actor.Is(event.OperatorID, event.OperatorName) {
		return deny(UndoOperatorMismatch)
	}
	return allow()
}

// downstreamProgressed reports whether any stage after the event's stage
// already has a successful scan. Events whose stage cannot be placed in the
// catalog are not ordered and pass this check.
func (g *UndoGuard) downstreamProgressed(event ScanEvent, log *EventLog, catalog *StageCatalog) bool {
	if catalog.Len() == 0 || log == nil {
		return false
	}
	key := eventStageKey(event, catalog)
	if key == "" {
		return false
	}
	for _, stage := range catalog.Downstream(key) {
		if len(log.SuccessfulForStage(catalog, stage.StageKey)) > 0 {
			return true
		}
	}
	return false
}
