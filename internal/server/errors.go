package server

import (
	"errors"
	"net/http"

	attestationdomain "github.com/fleetpass/fleetpass/internal/attestation/domain"
	"github.com/fleetpass/fleetpass/internal/authorization"
	balancedomain "github.com/fleetpass/fleetpass/internal/balance/domain"
	documenttypedomain "github.com/fleetpass/fleetpass/internal/documenttype/domain"
	"github.com/fleetpass/fleetpass/internal/money"
	subscriptiondomain "github.com/fleetpass/fleetpass/internal/subscription/domain"
	tenantdomain "github.com/fleetpass/fleetpass/internal/tenant/domain"
	vehicledomain "github.com/fleetpass/fleetpass/internal/vehicle/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	ItemIndex *int   `json:"item_index,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return ErrInvalidRequest
}

func mapError(err error) (int, errorPayload) {
	payload := errorPayload{Type: "internal_error", Message: "internal server error"}

	// Batch failures carry the offending item index through to the caller.
	var itemErr *attestationdomain.BatchItemError
	if errors.As(err, &itemErr) {
		index := itemErr.Index
		payload.ItemIndex = &index
		err = itemErr.Err
	}

	switch {
	case isValidationError(err):
		payload.Type = "validation_error"
		payload.Message = err.Error()
		return http.StatusUnprocessableEntity, payload
	case isNotFoundError(err):
		payload.Type = "not_found"
		payload.Message = err.Error()
		return http.StatusNotFound, payload
	case isForbiddenError(err):
		payload.Type = "forbidden"
		payload.Message = err.Error()
		return http.StatusForbidden, payload
	case balancedomain.IsInsufficientFunds(err):
		payload.Type = "payment_required"
		payload.Message = err.Error()
		return http.StatusPaymentRequired, payload
	case isConflictError(err):
		payload.Type = "conflict"
		payload.Message = err.Error()
		return http.StatusConflict, payload
	case errors.Is(err, balancedomain.ErrInvariantViolation):
		return http.StatusInternalServerError, payload
	default:
		return http.StatusInternalServerError, payload
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, money.ErrTooManyDecimals),
		errors.Is(err, money.ErrNotPositive):
		return true
	case errors.Is(err, tenantdomain.ErrInvalidTenant),
		errors.Is(err, tenantdomain.ErrInvalidName),
		errors.Is(err, tenantdomain.ErrInvalidCode),
		errors.Is(err, tenantdomain.ErrInvalidCurrency),
		errors.Is(err, tenantdomain.ErrInvalidModel):
		return true
	case errors.Is(err, vehicledomain.ErrInvalidVehicle),
		errors.Is(err, vehicledomain.ErrInvalidRegistration),
		errors.Is(err, vehicledomain.ErrInvalidVehicleTenant),
		errors.Is(err, vehicledomain.ErrVehicleWrongTenant):
		return true
	case errors.Is(err, documenttypedomain.ErrInvalidDocumentType),
		errors.Is(err, documenttypedomain.ErrInvalidTypeCode),
		errors.Is(err, documenttypedomain.ErrInvalidTypeName),
		errors.Is(err, documenttypedomain.ErrInvalidPrice):
		return true
	case errors.Is(err, balancedomain.ErrInvalidBalanceTenant),
		errors.Is(err, balancedomain.ErrInvalidAmount):
		return true
	case errors.Is(err, subscriptiondomain.ErrInvalidSubscription),
		errors.Is(err, subscriptiondomain.ErrInvalidSubscriptionKind),
		errors.Is(err, subscriptiondomain.ErrInvalidLimit),
		errors.Is(err, subscriptiondomain.ErrInvalidTargetStatus):
		return true
	case errors.Is(err, authorization.ErrInvalidSubject),
		errors.Is(err, authorization.ErrInvalidObject):
		return true
	case errors.Is(err, attestationdomain.ErrInvalidAttestation),
		errors.Is(err, attestationdomain.ErrInvalidBatch),
		errors.Is(err, attestationdomain.ErrEmptyBatch),
		errors.Is(err, attestationdomain.ErrInvalidWindow),
		errors.Is(err, attestationdomain.ErrCurrencyMismatch):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, tenantdomain.ErrTenantNotFound),
		errors.Is(err, vehicledomain.ErrVehicleNotFound),
		errors.Is(err, documenttypedomain.ErrDocumentTypeNotFound),
		errors.Is(err, balancedomain.ErrBalanceNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, attestationdomain.ErrAttestationNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isForbiddenError(err error) bool {
	return errors.Is(err, attestationdomain.ErrNotAuthorized) ||
		errors.Is(err, authorization.ErrNotAuthorized)
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, tenantdomain.ErrDuplicateCode),
		errors.Is(err, tenantdomain.ErrNoPaymentModel),
		errors.Is(err, tenantdomain.ErrPaymentModelLocked):
		return true
	case errors.Is(err, vehicledomain.ErrDuplicateVehicle),
		errors.Is(err, vehicledomain.ErrVehicleRetired):
		return true
	case errors.Is(err, documenttypedomain.ErrDuplicateTypeCode),
		errors.Is(err, documenttypedomain.ErrDocumentTypeInactive):
		return true
	case errors.Is(err, balancedomain.ErrBalanceExists),
		errors.Is(err, balancedomain.ErrBalanceClosed),
		errors.Is(err, balancedomain.ErrDepositOverflow),
		errors.Is(err, balancedomain.ErrCreditNotSupported),
		errors.Is(err, balancedomain.ErrSubscriptionRequired),
		errors.Is(err, balancedomain.ErrSubscriptionNotActive):
		return true
	case errors.Is(err, subscriptiondomain.ErrInvalidTransition),
		errors.Is(err, subscriptiondomain.ErrSubscriptionExists),
		errors.Is(err, subscriptiondomain.ErrSubscriptionKindMismatch):
		return true
	case errors.Is(err, attestationdomain.ErrActiveAttestationExists),
		errors.Is(err, attestationdomain.ErrDuplicateVehicleInBatch),
		errors.Is(err, attestationdomain.ErrInvalidState):
		return true
	default:
		return false
	}
}
