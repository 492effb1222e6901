package domain

import "context"

// SubState refines the current stage when it has internal steps
type SubState string

const (
	SubStateNone    SubState = ""
	SubStatePending SubState = "pending"
	SubStateReceive SubState = "receive"
	SubStateConfirm SubState = "confirm"
)

// StageProgress describes how one evaluated stage was judged
type StageProgress struct {
	StageKey     string       `json:"stageKey"`
	StageName    string       `json:"stageName"`
	Category     ScanCategory `json:"category"`
	Satisfied    bool         `json:"satisfied"`
	Skipped      bool         `json:"skipped"`
	SuccessCount int          `json:"successCount"`
	FailCount    int          `json:"failCount"`
}

// Resolution is the derived position of a unit in its stage sequence.
// Determined is false when the position could not be computed at all.
type Resolution struct {
	Determined   bool            `json:"determined"`
	StageKey     string          `json:"stageKey"`
	StageName    string          `json:"stageName"`
	SubState     SubState        `json:"subState,omitempty"`
	Category     ScanCategory    `json:"scanCategory,omitempty"`
	IsCompleted  bool            `json:"isCompleted"`
	Conservative bool            `json:"conservative"`
	Stages       []StageProgress `json:"stages,omitempty"`
}

// Undetermined is the result reported when evidence could not be loaded
func Undetermined() Resolution {
	return Resolution{Determined: false}
}

func completedResolution() Resolution {
	return Resolution{
		Determined:  true,
		StageKey:    StageCompleted,
		StageName:   StageCompleted,
		IsCompleted: true,
	}
}

// StageResolver walks a catalog against an event log to find the first unsatisfied stage
type StageResolver struct {
	quantity QuantityChecker
}

// NewStageResolver creates a resolver. A nil checker leaves quantity-gated
// stages unsatisfied.
func NewStageResolver(quantity QuantityChecker) *StageResolver {
	return &StageResolver{quantity: quantity}
}

// Resolve computes the current stage of unit. It only reads its inputs.
func (r *StageResolver) Resolve(ctx context.Context, catalog *StageCatalog, unit ProductionUnit, log *EventLog) (Resolution, error) {
	if catalog.Len() == 0 {
		return Resolution{}, ErrMissingCatalog
	}
	if unit.IsDeclaredComplete() {
		return completedResolution(), nil
	}

	res := Resolution{Determined: true}
	for _, stage := range catalog.stages {
		events := log.ForStage(catalog, stage.StageKey)
		progress := StageProgress{
			StageKey:  stage.StageKey,
			StageName: stage.StageName,
			Category:  stage.Category,
		}
		var successes []ScanEvent
		for _, e := range events {
			switch {
			case !e.IsSuccess():
				progress.FailCount++
			case e.IsSystemGenerated() && !stage.Skippable:
			default:
				successes = append(successes, e)
			}
		}
		progress.SuccessCount = len(successes)

		subState := SubStateNone
		switch {
		case stage.Category == CategoryProcurement && unit.MaterialsArrived():
			progress.Satisfied, progress.Skipped = true, true
		case stage.Skippable && !log.HasAnyForStage(catalog, stage.StageKey):
			progress.Satisfied, progress.Skipped = true, true
		case stage.Category == CategoryQuality:
			subState = qualitySubState(successes)
			progress.Satisfied = subState == SubStateConfirm
		case stage.QuantityGated:
			ok, conservative := r.quantitySatisfied(ctx, catalog, unit, log)
			progress.Satisfied = ok
			res.Conservative = res.Conservative || conservative
		default:
			progress.Satisfied = len(successes) > 0
		}

		res.Stages = append(res.Stages, progress)
		if !progress.Satisfied {
			res.StageKey = stage.StageKey
			res.StageName = stage.StageName
			res.Category = stage.Category
			res.SubState = subState
			return res, nil
		}
	}

	res.StageKey = StageCompleted
	res.StageName = StageCompleted
	res.IsCompleted = true
	return res, nil
}

// quantitySatisfied consults the checker. Errors and a missing checker
// resolve to not satisfied and mark the result conservative.
func (r *StageResolver) quantitySatisfied(ctx context.Context, catalog *StageCatalog, unit ProductionUnit, log *EventLog) (bool, bool) {
	if r.quantity == nil {
		return false, true
	}
	ok, err := r.quantity.IsQuantitySatisfied(ctx, unit, latestQualityConfirm(catalog, log))
	if err != nil {
		return false, true
	}
	return ok, false
}

// qualitySubState: any confirmation among successful events wins
func qualitySubState(successes []ScanEvent) SubState {
	if len(successes) == 0 {
		return SubStatePending
	}
	for _, e := range successes {
		if e.IsConfirmed() {
			return SubStateConfirm
		}
	}
	return SubStateReceive
}

func latestQualityConfirm(catalog *StageCatalog, log *EventLog) *ScanEvent {
	var latest *ScanEvent
	for _, e := range log.Successful() {
		if !e.IsConfirmed() {
			continue
		}
		category := e.Category
		if stage, ok := catalog.Stage(eventStageKey(e, catalog)); ok {
			category = stage.Category
		}
		if category != CategoryQuality {
			continue
		}
		ev := e
		latest = &ev
	}
	return latest
}
