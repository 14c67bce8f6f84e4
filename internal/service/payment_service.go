package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"zoneadmin/internal/models"
	"zoneadmin/internal/momo"
	"zoneadmin/internal/monitoring"
	"zoneadmin/internal/phone"
	"zoneadmin/internal/repository"
)

// Store is the transactional persistence boundary for payment records.
type Store interface {
	CreatePending(ctx context.Context, p *models.PendingTransaction) error
	MarkInitiated(ctx context.Context, id int64) error
	Complete(ctx context.Context, id int64, finalize func(*models.PendingTransaction) (*models.CompletedPayment, error)) (*models.CompletedPayment, error)
	ListPending(ctx context.Context, f repository.Filter) ([]models.PendingTransaction, error)
	ListCompleted(ctx context.Context, f repository.Filter) ([]models.CompletedPayment, error)
}

// ClientDirectory resolves a client's stored phone number. Client CRUD is
// owned elsewhere; this is the only read the orchestrator needs.
type ClientDirectory interface {
	PhoneNumber(ctx context.Context, clientID int64) (string, error)
}

// Provider is the mobile-money client surface the orchestrator drives.
type Provider interface {
	RequestToPay(ctx context.Context, p momo.PaymentRequest) (string, error)
	Status(ctx context.Context, referenceID string) (*momo.PaymentStatus, error)
}

// Defaults configure per-deployment fallbacks for new transactions.
type Defaults struct {
	Currency    string
	CountryCode string
	Provider    string
}

// PaymentService drives the pending → initiated → completed state machine.
type PaymentService struct {
	store    Store
	clients  ClientDirectory
	provider Provider
	logger   *zap.Logger
	defaults Defaults
}

// NewPaymentService builds the orchestrator.
func NewPaymentService(store Store, clients ClientDirectory, provider Provider, logger *zap.Logger, defaults Defaults) *PaymentService {
	if defaults.Provider == "" {
		defaults.Provider = "momo"
	}
	return &PaymentService{
		store:    store,
		clients:  clients,
		provider: provider,
		logger:   logger,
		defaults: defaults,
	}
}

// CreateInput carries caller-supplied fields for a new payment attempt.
type CreateInput struct {
	ClientID    int64
	Amount      decimal.Decimal
	Currency    string
	PhoneNumber string
	Purpose     string
	ExternalRef string
	Metadata    json.RawMessage
	Principal   models.Principal
}

// Create persists a pending transaction and then submits the payment
// instruction to the provider. Provider failure is non-fatal: the row stays
// at pending and the caller still gets it back, because the instruction can
// be retried independently of record-keeping.
func (s *PaymentService) Create(ctx context.Context, in CreateInput) (*models.PendingTransaction, error) {
	if in.ClientID <= 0 {
		return nil, &ValidationError{Msg: "client_id is required"}
	}
	if !in.Amount.IsPositive() {
		return nil, &ValidationError{Msg: "amount must be positive"}
	}
	// Only chiefs act as proxy payers; clients pay their own obligations.
	if in.Principal.Role == models.RoleClient && in.ClientID != in.Principal.ClientID {
		return nil, &ValidationError{Msg: "clients may only create payments for themselves"}
	}

	number, err := s.resolvePhone(ctx, in)
	if err != nil {
		return nil, err
	}

	currency := in.Currency
	if currency == "" {
		currency = s.defaults.Currency
	}
	purpose := in.Purpose
	if purpose == "" {
		purpose = fmt.Sprintf("Payment for %s", time.Now().Format("2006-01"))
	}
	externalRef := in.ExternalRef
	if externalRef == "" {
		externalRef = newReferenceID()
	}

	p := &models.PendingTransaction{
		ClientID:    in.ClientID,
		Amount:      in.Amount,
		Currency:    currency,
		Provider:    s.defaults.Provider,
		PhoneNumber: number,
		Purpose:     purpose,
		ExternalRef: externalRef,
		Status:      models.StatusPending,
		Metadata:    in.Metadata,
	}
	if in.Principal.IsChief() {
		p.IsPaidByChief = true
		p.PaidByChiefID = in.Principal.UserID
	}

	if err := s.store.CreatePending(ctx, p); err != nil {
		return nil, &StoreError{Err: err}
	}
	monitoring.TrackPaymentCreated()

	if _, err := s.provider.RequestToPay(ctx, momo.PaymentRequest{
		Amount:       p.Amount,
		Currency:     p.Currency,
		PhoneNumber:  p.PhoneNumber,
		ExternalID:   fmt.Sprintf("%d", p.ID),
		PayerMessage: p.Purpose,
		PayeeNote:    p.Purpose,
		ReferenceID:  p.ExternalRef,
	}); err != nil {
		// Best effort: the persisted row is the source of truth and the
		// instruction can be re-submitted later against the same reference id.
		s.logger.Warn("request to pay failed, transaction left pending",
			zap.Int64("pending_id", p.ID),
			zap.String("external_ref", p.ExternalRef),
			zap.Error(err),
		)
		return p, nil
	}

	if err := s.store.MarkInitiated(ctx, p.ID); err != nil {
		s.logger.Warn("failed to mark transaction initiated",
			zap.Int64("pending_id", p.ID),
			zap.Error(err),
		)
		return p, nil
	}
	p.Status = models.StatusInitiated
	monitoring.TrackPaymentInitiated()

	s.logger.Info("payment initiated",
		zap.Int64("pending_id", p.ID),
		zap.Int64("client_id", p.ClientID),
		zap.String("external_ref", p.ExternalRef),
	)
	return p, nil
}

func (s *PaymentService) resolvePhone(ctx context.Context, in CreateInput) (string, error) {
	raw := in.PhoneNumber
	if raw == "" {
		if in.Principal.IsChief() {
			return "", &ValidationError{Msg: "phone_number is required when paying on behalf of a client"}
		}
		stored, err := s.clients.PhoneNumber(ctx, in.ClientID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return "", &ValidationError{Msg: "client has no stored phone number"}
			}
			return "", &StoreError{Err: err}
		}
		raw = stored
	}

	number := phone.Normalize(raw, s.defaults.CountryCode)
	if number == "" {
		return "", &ValidationError{Msg: "phone_number is required"}
	}
	return number, nil
}

// CompleteInput carries the caller's view of the terminal outcome. All
// fields except PendingID are optional.
type CompleteInput struct {
	PendingID     int64
	TransactionID string
	Status        string
	ReferenceID   string
}

// Complete atomically migrates a pending transaction to a completed payment.
// The provider may be queried for the authoritative status; its failure
// degrades the record to the caller-declared status, or to "unknown" when
// none was given — it never aborts the operation. Store failures roll the
// whole unit of work back and leave the pending row intact.
func (s *PaymentService) Complete(ctx context.Context, in CompleteInput) (*models.CompletedPayment, error) {
	if in.PendingID <= 0 {
		return nil, &ValidationError{Msg: "pending transaction id is required"}
	}

	completed, err := s.store.Complete(ctx, in.PendingID, func(p *models.PendingTransaction) (*models.CompletedPayment, error) {
		ref := p.ExternalRef
		if ref != "" && in.ReferenceID != "" && in.ReferenceID != ref {
			return nil, ErrReferenceMismatch
		}
		if ref == "" {
			// Legacy rows created before reference ids were mandatory.
			ref = in.ReferenceID
		}

		status := in.Status
		transactionID := in.TransactionID

		if transactionID == "" && ref != "" {
			providerStatus, lookupErr := s.provider.Status(ctx, ref)
			if lookupErr != nil {
				s.logger.Warn("provider status lookup failed, completing with caller-declared status",
					zap.Int64("pending_id", p.ID),
					zap.String("external_ref", ref),
					zap.Error(lookupErr),
				)
			} else {
				transactionID = providerStatus.FinancialTransactionID
				if status == "" {
					status = mapProviderStatus(providerStatus.Status)
				}
			}
		}
		if status == "" {
			// Never record success on the provider's silence.
			status = models.StatusUnknown
		}

		return &models.CompletedPayment{
			ClientID:      p.ClientID,
			Amount:        p.Amount,
			Currency:      p.Currency,
			Provider:      p.Provider,
			PhoneNumber:   p.PhoneNumber,
			Purpose:       p.Purpose,
			ExternalRef:   ref,
			TransactionID: transactionID,
			Status:        status,
			Metadata:      p.Metadata,
			IsPaidByChief: p.IsPaidByChief,
			PaidByChiefID: p.PaidByChiefID,
			CreatedAt:     p.CreatedAt,
		}, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrReferenceMismatch) {
			return nil, err
		}
		var valErr *ValidationError
		if errors.As(err, &valErr) {
			return nil, err
		}
		return nil, &StoreError{Err: err}
	}

	monitoring.TrackPaymentCompleted(completed.Status)
	s.logger.Info("payment completed",
		zap.Int64("completed_id", completed.ID),
		zap.Int64("client_id", completed.ClientID),
		zap.String("status", completed.Status),
		zap.String("transaction_id", completed.TransactionID),
	)
	return completed, nil
}

// newReferenceID is swappable in tests.
var newReferenceID = uuid.NewString

func mapProviderStatus(providerStatus string) string {
	switch providerStatus {
	case momo.StatusSuccessful:
		return models.StatusSuccess
	case momo.StatusFailed:
		return models.StatusFailed
	default:
		return models.StatusUnknown
	}
}

// QueryFilter is the listing filter contract consumed by the reporting
// layer: scope=chief, mine=true, filter=today and an optional row limit.
type QueryFilter struct {
	ChiefScope bool
	Mine       bool
	Today      bool
	Limit      int
}

// ListPending returns pending transactions visible to the principal.
func (s *PaymentService) ListPending(ctx context.Context, principal models.Principal, q QueryFilter) ([]models.PendingTransaction, error) {
	f, visible := scopedFilter(principal, q)
	if !visible {
		return nil, nil
	}
	txs, err := s.store.ListPending(ctx, f)
	if err != nil {
		return nil, &StoreError{Err: err}
	}
	return txs, nil
}

// ListCompleted returns completed payments visible to the principal.
func (s *PaymentService) ListCompleted(ctx context.Context, principal models.Principal, q QueryFilter) ([]models.CompletedPayment, error) {
	f, visible := scopedFilter(principal, q)
	if !visible {
		return nil, nil
	}
	payments, err := s.store.ListCompleted(ctx, f)
	if err != nil {
		return nil, &StoreError{Err: err}
	}
	return payments, nil
}

// scopedFilter enforces role visibility server-side: chiefs asking for their
// proxy payments get chief scope, admins see everything, everyone else is
// pinned to their own client rows. A pinned principal without a client
// record has nothing it is allowed to see; the second return reports that,
// so a zero ClientID never degrades into an unscoped listing.
func scopedFilter(principal models.Principal, q QueryFilter) (repository.Filter, bool) {
	f := repository.Filter{Today: q.Today, Limit: q.Limit}

	switch {
	case q.ChiefScope && principal.IsChief():
		f.ChiefID = principal.UserID
	case q.Mine || !principal.IsAdmin():
		if principal.ClientID <= 0 {
			return repository.Filter{}, false
		}
		f.ClientID = principal.ClientID
	}
	return f, true
}
