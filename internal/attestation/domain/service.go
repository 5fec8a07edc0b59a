package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type BatchItem struct {
	VehicleID      string         `json:"vehicle_id"`
	DocumentTypeID string         `json:"document_type_id"`
	ValidFrom      time.Time      `json:"valid_from"`
	ValidTo        time.Time      `json:"valid_to"`
	CustomFields   map[string]any `json:"custom_fields,omitempty"`
}

type IssueBatchRequest struct {
	TenantID string      `json:"tenant_id"`
	Currency string      `json:"currency"`
	Items    []BatchItem `json:"items"`
}

type BatchItemResult struct {
	AttestationID string    `json:"attestation_id"`
	Reference     string    `json:"reference"`
	ValidFrom     time.Time `json:"valid_from"`
	ValidTo       time.Time `json:"valid_to"`
	DocumentPath  string    `json:"document_path,omitempty"`
}

// BatchResult reports one committed billing event: every item issued and
// exactly one charge.
type BatchResult struct {
	Items               []BatchItemResult `json:"items"`
	TotalChargedMinor   int64             `json:"-"`
	TotalCharged        string            `json:"total_charged"`
	Currency            string            `json:"currency"`
	PaymentModel        string            `json:"payment_model"`
	LedgerTransactionID string            `json:"ledger_transaction_id"`
}

type VerifyResult struct {
	Reference string            `json:"reference"`
	Valid     bool              `json:"valid"`
	Status    AttestationStatus `json:"status"`
	ValidFrom time.Time         `json:"valid_from"`
	ValidTo   time.Time         `json:"valid_to"`
}

type Service interface {
	// IssueBatch runs the whole batch as one atomic billing event: any item
	// failing aborts everything, including the debit.
	IssueBatch(ctx context.Context, req IssueBatchRequest) (BatchResult, error)
	Cancel(ctx context.Context, id, reason string) (Attestation, error)
	GetByID(ctx context.Context, id string) (Attestation, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Attestation, error)
	// Verify is a pure read: no state changes, safe to cache briefly.
	Verify(ctx context.Context, reference string) (VerifyResult, error)
	// ExpireAll transitions every ACTIVE attestation past its validity end to
	// ENDED. Idempotent; returns the number of attestations expired.
	ExpireAll(ctx context.Context) (int64, error)
	// RenderDocument regenerates the certificate for an issued attestation.
	RenderDocument(ctx context.Context, id string) (string, error)
}

var (
	ErrInvalidAttestation      = errors.New("invalid_attestation")
	ErrInvalidBatch            = errors.New("invalid_batch")
	ErrEmptyBatch              = errors.New("empty_batch")
	ErrInvalidWindow           = errors.New("invalid_validity_window")
	ErrCurrencyMismatch        = errors.New("currency_mismatch")
	ErrAttestationNotFound     = errors.New("attestation_not_found")
	ErrActiveAttestationExists = errors.New("vehicle_has_active_attestation")
	ErrDuplicateVehicleInBatch = errors.New("duplicate_vehicle_in_batch")
	ErrInvalidState            = errors.New("invalid_attestation_state")
	ErrNotAuthorized           = errors.New("tenant_not_authorized_for_type")
)

// BatchItemError pins a batch failure to the offending item.
type BatchItemError struct {
	Index int
	Err   error
}

func (e *BatchItemError) Error() string {
	return fmt.Sprintf("batch item %d: %v", e.Index, e.Err)
}

func (e *BatchItemError) Unwrap() error { return e.Err }
