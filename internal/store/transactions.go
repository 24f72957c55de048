package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"shop-assistant/internal/common/errors"
	"shop-assistant/internal/common/logger"
	"shop-assistant/internal/models"
)

// TransactionStore persists confirmed quotes and serves the price samples the
// history learner feeds on.
type TransactionStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewTransactionStore(db *sql.DB, log logger.Logger) *TransactionStore {
	return &TransactionStore{db: db, logger: log}
}

// Save writes the transaction and its items atomically. It fills in the ID
// and CreatedAt when unset.
func (s *TransactionStore) Save(ctx context.Context, txn *models.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewTransactionFailedError(err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, session_id, partner_id, partner_name, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		txn.ID, txn.SessionID, nullString(txn.PartnerID), nullString(txn.PartnerName), txn.Total, txn.CreatedAt)
	if err != nil {
		return errors.NewTransactionFailedError(err)
	}

	for _, item := range txn.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, product_name, product_id, quantity, unit, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			txn.ID, item.ProductName, nullString(item.ProductID), item.Quantity, item.Unit, item.UnitPrice, item.Subtotal)
		if err != nil {
			return errors.NewTransactionFailedError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewTransactionFailedError(err)
	}

	s.logger.Info("transaction committed", map[string]interface{}{
		"transactionId": txn.ID,
		"itemCount":     len(txn.Items),
		"total":         txn.Total,
	})
	return nil
}

// LoadPriceSamples returns (price, time) pairs for a product within the
// window, optionally narrowed to one partner.
func (s *TransactionStore) LoadPriceSamples(ctx context.Context, product, partner string, since time.Time) ([]models.PriceSample, error) {
	query := `
		SELECT i.unit_price, t.created_at
		FROM transaction_items i
		JOIN transactions t ON t.id = i.transaction_id
		WHERE i.product_name = $1 AND t.created_at >= $2`
	args := []interface{}{product, since}

	if partner != "" {
		query += ` AND t.partner_id = $3`
		args = append(args, partner)
	}
	query += ` ORDER BY t.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewHistoryLoadFailedError(err)
	}
	defer rows.Close()

	var samples []models.PriceSample
	for rows.Next() {
		var sample models.PriceSample
		if err := rows.Scan(&sample.Price, &sample.Timestamp); err != nil {
			return nil, errors.NewHistoryLoadFailedError(err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewHistoryLoadFailedError(err)
	}
	return samples, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
