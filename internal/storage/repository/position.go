package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// PositionRepository читает нетто-позиции
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository создает новый репозиторий позиций
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// GetQty возвращает знаковое количество; отсутствие строки = плоская позиция
func (r *PositionRepository) GetQty(ctx context.Context, symbol string) (float64, error) {
	var qty float64
	query := `SELECT quantity_signed FROM positions WHERE symbol = $1`

	err := r.db.QueryRowContext(ctx, query, strings.ToUpper(symbol)).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return qty, nil
}
