package application

import (
	"net/http"

	"github.com/fashion-supplychain/progress-service/internal/domain"
	"github.com/fashion-supplychain/progress-service/pkg/errors"
)

func init() {
	errors.RegisterSentinel(domain.ErrInvalidCatalog, func(err error) *errors.AppError {
		return errors.ErrValidation(err.Error())
	})
	errors.RegisterSentinel(domain.ErrAmbiguousAlias, func(err error) *errors.AppError {
		return errors.ErrValidation(err.Error())
	})
	errors.RegisterSentinel(domain.ErrUnresolvedStage, func(err error) *errors.AppError {
		return errors.ErrValidation(err.Error())
	})
	errors.RegisterSentinel(domain.ErrMissingCatalog, func(error) *errors.AppError {
		return errors.NewAppError(errors.CodeMissingCatalog, "no stage catalog configured for style", http.StatusUnprocessableEntity)
	})
	errors.RegisterSentinel(domain.ErrDuplicateRequest, func(err error) *errors.AppError {
		return errors.ErrConflict(err.Error())
	})
	errors.RegisterSentinel(domain.ErrClaimConflict, func(err error) *errors.AppError {
		return errors.ErrConflict(err.Error())
	})
	errors.RegisterSentinel(domain.ErrScanNotUndoable, func(err error) *errors.AppError {
		return errors.NewAppError(errors.CodeUndoRejected, err.Error(), http.StatusConflict)
	})
	errors.RegisterSentinel(domain.ErrFetchTimeout, func(error) *errors.AppError {
		return errors.ErrTimeout("upstream fetch")
	})
	errors.RegisterSentinel(domain.ErrPageLimitExceeded, func(error) *errors.AppError {
		return errors.ErrServiceUnavailable("warehousing records")
	})
	errors.RegisterSentinel(domain.ErrNoWarehousingSource, func(error) *errors.AppError {
		return errors.ErrServiceUnavailable("warehousing records")
	})
}
