package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"zoneadmin/internal/models"
)

// ErrNotFound is returned when a referenced row does not exist. A Complete
// racing against another Complete for the same id observes this after the
// winner's delete commits.
var ErrNotFound = errors.New("repository: not found")

// Filter narrows pending/completed listings. Zero values mean "no
// constraint"; role scoping is decided by the caller.
type Filter struct {
	ClientID int64
	ChiefID  int64
	Today    bool
	Limit    int
}

// PaymentsRepository persists pending transactions and completed payments.
type PaymentsRepository struct {
	db *sql.DB
}

// NewPaymentsRepository returns repository.
func NewPaymentsRepository(db *sql.DB) *PaymentsRepository {
	return &PaymentsRepository{db: db}
}

const pendingColumns = `id, client_id, amount, currency, provider, phone_number, purpose,
	external_ref, status, metadata, is_paid_by_chief, paid_by_chief_id, created_at`

const completedColumns = `id, client_id, amount, currency, provider, phone_number, purpose,
	external_ref, transaction_id, status, metadata, is_paid_by_chief, paid_by_chief_id,
	created_at, completed_at`

// CreatePending inserts a new pending transaction and fills in the
// store-assigned id and timestamp.
func (r *PaymentsRepository) CreatePending(ctx context.Context, p *models.PendingTransaction) error {
	const query = `
		INSERT INTO pending_transactions
			(client_id, amount, currency, provider, phone_number, purpose,
			 external_ref, status, metadata, is_paid_by_chief, paid_by_chief_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query,
		p.ClientID,
		p.Amount,
		p.Currency,
		p.Provider,
		p.PhoneNumber,
		p.Purpose,
		nullString(p.ExternalRef),
		p.Status,
		nullJSON(p.Metadata),
		p.IsPaidByChief,
		nullInt64(p.PaidByChiefID),
	).Scan(&p.ID, &p.CreatedAt)
}

// MarkInitiated transitions a pending row to initiated after the provider
// accepted the submission.
func (r *PaymentsRepository) MarkInitiated(ctx context.Context, id int64) error {
	const query = `
		UPDATE pending_transactions
		SET status = $1
		WHERE id = $2 AND status = $3
	`
	result, err := r.db.ExecContext(ctx, query, models.StatusInitiated, id, models.StatusPending)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Complete atomically migrates a pending transaction into a completed
// payment. The pending row is loaded under FOR UPDATE, handed to finalize to
// resolve the terminal record, then the completed row is inserted and the
// pending row deleted in the same transaction. Any error rolls everything
// back and leaves the pending row intact.
func (r *PaymentsRepository) Complete(ctx context.Context, id int64, finalize func(*models.PendingTransaction) (*models.CompletedPayment, error)) (*models.CompletedPayment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	const loadQuery = `
		SELECT ` + pendingColumns + `
		FROM pending_transactions
		WHERE id = $1
		FOR UPDATE
	`
	var p models.PendingTransaction
	if err := scanPending(tx.QueryRowContext(ctx, loadQuery, id), &p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	completed, err := finalize(&p)
	if err != nil {
		return nil, err
	}

	const insertQuery = `
		INSERT INTO completed_payments
			(client_id, amount, currency, provider, phone_number, purpose,
			 external_ref, transaction_id, status, metadata,
			 is_paid_by_chief, paid_by_chief_id, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		RETURNING id, completed_at
	`
	err = tx.QueryRowContext(ctx, insertQuery,
		completed.ClientID,
		completed.Amount,
		completed.Currency,
		completed.Provider,
		completed.PhoneNumber,
		completed.Purpose,
		nullString(completed.ExternalRef),
		nullString(completed.TransactionID),
		completed.Status,
		nullJSON(completed.Metadata),
		completed.IsPaidByChief,
		nullInt64(completed.PaidByChiefID),
		completed.CreatedAt,
	).Scan(&completed.ID, &completed.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("insert completed payment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_transactions WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete pending transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return completed, nil
}

// ListPending returns pending transactions matching the filter, newest first.
func (r *PaymentsRepository) ListPending(ctx context.Context, f Filter) ([]models.PendingTransaction, error) {
	where, args := buildFilter(f, "created_at")
	query := fmt.Sprintf(`
		SELECT `+pendingColumns+`
		FROM pending_transactions
		%s
		ORDER BY created_at DESC
		LIMIT %d
	`, where, limitOf(f))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.PendingTransaction
	for rows.Next() {
		var p models.PendingTransaction
		if err := scanPending(rows, &p); err != nil {
			return nil, err
		}
		txs = append(txs, p)
	}
	return txs, rows.Err()
}

// ListCompleted returns completed payments matching the filter, newest first.
func (r *PaymentsRepository) ListCompleted(ctx context.Context, f Filter) ([]models.CompletedPayment, error) {
	where, args := buildFilter(f, "completed_at")
	query := fmt.Sprintf(`
		SELECT `+completedColumns+`
		FROM completed_payments
		%s
		ORDER BY completed_at DESC
		LIMIT %d
	`, where, limitOf(f))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.CompletedPayment
	for rows.Next() {
		var c models.CompletedPayment
		if err := scanCompleted(rows, &c); err != nil {
			return nil, err
		}
		payments = append(payments, c)
	}
	return payments, rows.Err()
}

// buildFilter renders the WHERE clause for a listing. dateColumn is the
// column the today filter truncates against.
func buildFilter(f Filter, dateColumn string) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if f.ClientID > 0 {
		args = append(args, f.ClientID)
		clauses = append(clauses, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if f.ChiefID > 0 {
		args = append(args, f.ChiefID)
		clauses = append(clauses, fmt.Sprintf("is_paid_by_chief AND paid_by_chief_id = $%d", len(args)))
	}
	if f.Today {
		clauses = append(clauses, fmt.Sprintf("%s::date = CURRENT_DATE", dateColumn))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func limitOf(f Filter) int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPending(row rowScanner, p *models.PendingTransaction) error {
	var (
		externalRef sql.NullString
		metadata    []byte
		chiefID     sql.NullInt64
	)
	if err := row.Scan(
		&p.ID,
		&p.ClientID,
		&p.Amount,
		&p.Currency,
		&p.Provider,
		&p.PhoneNumber,
		&p.Purpose,
		&externalRef,
		&p.Status,
		&metadata,
		&p.IsPaidByChief,
		&chiefID,
		&p.CreatedAt,
	); err != nil {
		return err
	}
	p.ExternalRef = externalRef.String
	p.Metadata = json.RawMessage(metadata)
	p.PaidByChiefID = chiefID.Int64
	return nil
}

func scanCompleted(row rowScanner, c *models.CompletedPayment) error {
	var (
		externalRef   sql.NullString
		transactionID sql.NullString
		metadata      []byte
		chiefID       sql.NullInt64
	)
	if err := row.Scan(
		&c.ID,
		&c.ClientID,
		&c.Amount,
		&c.Currency,
		&c.Provider,
		&c.PhoneNumber,
		&c.Purpose,
		&externalRef,
		&transactionID,
		&c.Status,
		&metadata,
		&c.IsPaidByChief,
		&chiefID,
		&c.CreatedAt,
		&c.CompletedAt,
	); err != nil {
		return err
	}
	c.ExternalRef = externalRef.String
	c.TransactionID = transactionID.String
	c.Metadata = json.RawMessage(metadata)
	c.PaidByChiefID = chiefID.Int64
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
