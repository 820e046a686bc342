package reprice

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/toko-pricing/internal/common"
	"github.com/noah-isme/toko-pricing/internal/discount"
	"github.com/noah-isme/toko-pricing/internal/lock"
	"github.com/noah-isme/toko-pricing/internal/pricing/product"
	"github.com/noah-isme/toko-pricing/internal/store"
)

func invalid(err error) error {
	var details any
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Namespace()] = fe.Tag()
		}
		details = fields
	}
	appErr := common.NewAppError("VALIDATION_ERROR", err.Error(), http.StatusBadRequest, err)
	appErr.Details = details
	return appErr
}

// AsAppError maps service errors onto HTTP-aware application errors. Errors
// that already carry a code pass through.
func AsAppError(err error) error {
	if err == nil || common.IsAppError(err) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, ErrDiscountNotFound):
		return common.NewAppError("NOT_FOUND", err.Error(), http.StatusNotFound, err)
	case errors.Is(err, store.ErrVersionConflict):
		return store.AsAppError(err)
	case errors.Is(err, lock.ErrNotAcquired), errors.Is(err, lock.ErrLost):
		return common.NewAppError("ORDER_BUSY", err.Error(), http.StatusConflict, err)
	case errors.Is(err, product.ErrProductRequired):
		return common.NewAppError("VALIDATION_ERROR", err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, discount.ErrAlreadyApplied), errors.Is(err, discount.ErrUsageLimitReached):
		return common.NewAppError("DISCOUNT_CONFLICT", err.Error(), http.StatusConflict, err)
	case errors.Is(err, discount.ErrRemovalNotAllowed):
		return common.NewAppError("DISCOUNT_REMOVAL_NOT_ALLOWED", err.Error(), http.StatusForbidden, err)
	case errors.Is(err, discount.ErrCodeNotApplicable),
		errors.Is(err, discount.ErrVoucherNotFound),
		errors.Is(err, discount.ErrNotEligible),
		errors.Is(err, discount.ErrVoucherInactive),
		errors.Is(err, discount.ErrVoucherExpired),
		errors.Is(err, discount.ErrMinimumSpendUnmet):
		return common.NewAppError("DISCOUNT_NOT_APPLICABLE", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, context.DeadlineExceeded):
		return common.NewAppError("TIMEOUT", err.Error(), http.StatusGatewayTimeout, err)
	default:
		return err
	}
}
