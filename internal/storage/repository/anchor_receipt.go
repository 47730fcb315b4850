package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/kirillm/verigate/internal/domain"
)

// AnchorReceiptRepository журнал попыток анкоринга
type AnchorReceiptRepository struct {
	db *sql.DB
}

// NewAnchorReceiptRepository создает новый репозиторий
func NewAnchorReceiptRepository(db *sql.DB) *AnchorReceiptRepository {
	return &AnchorReceiptRepository{db: db}
}

// Save сохраняет результат; пустой TxHash пишется как NULL
func (r *AnchorReceiptRepository) Save(ctx context.Context, record *domain.AnchorRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO anchor_receipts (kind, ref_id, trace_id, tx_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return r.db.QueryRowContext(
		ctx,
		query,
		record.Kind,
		record.RefID,
		record.TraceID,
		nullString(record.TxHash),
		record.CreatedAt,
	).Scan(&record.ID)
}

// GetByRef получает попытки анкоринга по объекту
func (r *AnchorReceiptRepository) GetByRef(ctx context.Context, kind, refID string) ([]domain.AnchorRecord, error) {
	query := `
		SELECT id, kind, ref_id, trace_id, COALESCE(tx_hash, ''), created_at
		FROM anchor_receipts
		WHERE kind = $1 AND ref_id = $2
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, kind, refID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.AnchorRecord
	for rows.Next() {
		var rec domain.AnchorRecord
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.RefID, &rec.TraceID, &rec.TxHash, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
