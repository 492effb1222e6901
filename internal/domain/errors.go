package domain

import "errors"

// Errors
var (
	ErrMissingCatalog      = errors.New("no stage catalog available")
	ErrInvalidCatalog      = errors.New("invalid stage catalog")
	ErrAmbiguousAlias      = errors.New("stage name matches more than one stage")
	ErrUnresolvedStage     = errors.New("stage name matches no stage")
	ErrFetchTimeout        = errors.New("external fetch exceeded its time budget")
	ErrPageLimitExceeded   = errors.New("page limit exceeded")
	ErrNoWarehousingSource = errors.New("no warehousing source configured")
	ErrScanNotUndoable     = errors.New("scan is no longer undoable")
	ErrClaimConflict       = errors.New("task was claimed concurrently")
	ErrDuplicateRequest    = errors.New("scan request already recorded")
)
