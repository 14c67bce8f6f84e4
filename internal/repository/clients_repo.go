package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// ClientsRepository reads the client records owned by the zone CRUD
// subsystem. The payment service only needs the stored phone number.
type ClientsRepository struct {
	db *sql.DB
}

// NewClientsRepository returns repository.
func NewClientsRepository(db *sql.DB) *ClientsRepository {
	return &ClientsRepository{db: db}
}

// PhoneNumber returns the client's stored phone number, which may be empty.
func (r *ClientsRepository) PhoneNumber(ctx context.Context, clientID int64) (string, error) {
	const query = `SELECT COALESCE(phone_number, '') FROM clients WHERE id = $1`

	var number string
	err := r.db.QueryRowContext(ctx, query, clientID).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(number), nil
}
