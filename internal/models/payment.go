package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Pending transaction statuses. Terminal outcomes live on CompletedPayment.
const (
	StatusPending   = "pending"
	StatusInitiated = "initiated"
)

// Completed payment statuses. "unknown" marks records finalized while the
// provider was unreachable and no caller status was given; those need manual
// reconciliation.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusUnknown = "unknown"
)

// PendingTransaction is one in-flight collection attempt. ExternalRef is the
// client-generated idempotency key correlating the row with the provider-side
// payment instruction; empty means not yet assigned. Once set it never
// changes for the life of the row.
type PendingTransaction struct {
	ID            int64           `db:"id" json:"id"`
	ClientID      int64           `db:"client_id" json:"client_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Currency      string          `db:"currency" json:"currency"`
	Provider      string          `db:"provider" json:"provider"`
	PhoneNumber   string          `db:"phone_number" json:"phone_number"`
	Purpose       string          `db:"purpose" json:"purpose"`
	ExternalRef   string          `db:"external_ref" json:"external_ref,omitempty"`
	Status        string          `db:"status" json:"status"`
	Metadata      json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	IsPaidByChief bool            `db:"is_paid_by_chief" json:"is_paid_by_chief"`
	PaidByChiefID int64           `db:"paid_by_chief_id" json:"paid_by_chief_id,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// CompletedPayment is the immutable terminal record of a payment attempt,
// written exactly once in the same transaction that deletes the pending row.
type CompletedPayment struct {
	ID            int64           `db:"id" json:"id"`
	ClientID      int64           `db:"client_id" json:"client_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Currency      string          `db:"currency" json:"currency"`
	Provider      string          `db:"provider" json:"provider"`
	PhoneNumber   string          `db:"phone_number" json:"phone_number"`
	Purpose       string          `db:"purpose" json:"purpose"`
	ExternalRef   string          `db:"external_ref" json:"external_ref,omitempty"`
	TransactionID string          `db:"transaction_id" json:"transaction_id,omitempty"`
	Status        string          `db:"status" json:"status"`
	Metadata      json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	IsPaidByChief bool            `db:"is_paid_by_chief" json:"is_paid_by_chief"`
	PaidByChiefID int64           `db:"paid_by_chief_id" json:"paid_by_chief_id,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	CompletedAt   time.Time       `db:"completed_at" json:"completed_at"`
}
