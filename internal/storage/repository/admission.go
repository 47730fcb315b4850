package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/kirillm/verigate/internal/domain"
	"github.com/lib/pq"
)

// AdmissionRepository управляет аудитом решений о допуске
type AdmissionRepository struct {
	db *sql.DB
}

// NewAdmissionRepository создает новый репозиторий
func NewAdmissionRepository(db *sql.DB) *AdmissionRepository {
	return &AdmissionRepository{db: db}
}

// Save сохраняет решение
func (r *AdmissionRepository) Save(ctx context.Context, record *domain.AdmissionRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO admissions (
			trace_id, symbol, side, quantity, current_qty,
			decision, degraded, verdict_id, proof_id, reasons, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	return r.db.QueryRowContext(
		ctx,
		query,
		record.TraceID,
		record.Symbol,
		record.Side,
		record.Quantity,
		record.CurrentQty,
		record.Decision,
		record.Degraded,
		nullString(record.VerdictID),
		nullString(record.ProofID),
		pq.Array(record.Reasons),
		record.CreatedAt,
	).Scan(&record.ID)
}

// GetByTrace получает решения по trace id
func (r *AdmissionRepository) GetByTrace(ctx context.Context, traceID string) ([]domain.AdmissionRecord, error) {
	query := `
		SELECT id, trace_id, symbol, side, quantity, current_qty, decision, degraded,
		       COALESCE(verdict_id, ''), COALESCE(proof_id, ''), reasons, created_at
		FROM admissions
		WHERE trace_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.AdmissionRecord
	for rows.Next() {
		var rec domain.AdmissionRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.TraceID,
			&rec.Symbol,
			&rec.Side,
			&rec.Quantity,
			&rec.CurrentQty,
			&rec.Decision,
			&rec.Degraded,
			&rec.VerdictID,
			&rec.ProofID,
			pq.Array(&rec.Reasons),
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
