package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillm/verigate/internal/config"
	"github.com/kirillm/verigate/internal/domain"
	"github.com/kirillm/verigate/internal/storage/repository"
	_ "github.com/lib/pq"
)

// PostgresStorage является фасадом для работы с PostgreSQL через репозитории
type PostgresStorage struct {
	db         *sql.DB
	positions  *repository.PositionRepository
	admissions *repository.AdmissionRepository
	anchors    *repository.AnchorReceiptRepository
}

// DSN строит строку подключения для lib/pq
func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

func NewPostgresStorage(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDatabaseConnection, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping failed: %v", domain.ErrDatabaseConnection, err)
	}

	// Настройка connection pool из конфигурации
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	storage := NewWithDB(db)

	// Запускаем миграции
	if err := storage.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return storage, nil
}

// NewWithDB собирает фасад поверх готового соединения
func NewWithDB(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{
		db:         db,
		positions:  repository.NewPositionRepository(db),
		admissions: repository.NewAdmissionRepository(db),
		anchors:    repository.NewAnchorReceiptRepository(db),
	}
}

func (s *PostgresStorage) migrate(ctx context.Context) error {
	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

var migrations = []string{
	// Позиции ведет внешний учет, здесь только чтение
	`CREATE TABLE IF NOT EXISTS positions (
		symbol VARCHAR(32) PRIMARY KEY,
		quantity_signed DECIMAL(28, 10) NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// Аудит решений о допуске
	`CREATE TABLE IF NOT EXISTS admissions (
		id BIGSERIAL PRIMARY KEY,
		trace_id VARCHAR(64) NOT NULL,
		symbol VARCHAR(32) NOT NULL,
		side VARCHAR(8) NOT NULL,
		quantity DECIMAL(28, 10) NOT NULL,
		current_qty DECIMAL(28, 10) NOT NULL,
		decision VARCHAR(32) NOT NULL,
		degraded BOOLEAN NOT NULL DEFAULT false,
		verdict_id VARCHAR(128),
		proof_id VARCHAR(128),
		reasons TEXT[],
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// Результаты анкоринга; tx_hash NULL если записи в леджере нет
	`CREATE TABLE IF NOT EXISTS anchor_receipts (
		id BIGSERIAL PRIMARY KEY,
		kind VARCHAR(16) NOT NULL,
		ref_id VARCHAR(128) NOT NULL,
		trace_id VARCHAR(64) NOT NULL,
		tx_hash VARCHAR(66),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_admissions_trace_id ON admissions(trace_id)`,
	`CREATE INDEX IF NOT EXISTS idx_admissions_created_at ON admissions(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_anchor_receipts_ref ON anchor_receipts(kind, ref_id)`,
}

// ==================== POSITIONS ====================

func (s *PostgresStorage) GetPositionQty(ctx context.Context, symbol string) (float64, error) {
	return s.positions.GetQty(ctx, symbol)
}

// ==================== ADMISSIONS ====================

func (s *PostgresStorage) SaveAdmission(ctx context.Context, record *domain.AdmissionRecord) error {
	return s.admissions.Save(ctx, record)
}

func (s *PostgresStorage) GetAdmissionsByTrace(ctx context.Context, traceID string) ([]domain.AdmissionRecord, error) {
	return s.admissions.GetByTrace(ctx, traceID)
}

// ==================== ANCHORS ====================

func (s *PostgresStorage) SaveAnchorReceipt(ctx context.Context, record *domain.AnchorRecord) error {
	return s.anchors.Save(ctx, record)
}

func (s *PostgresStorage) GetAnchorReceipts(ctx context.Context, kind, refID string) ([]domain.AnchorRecord, error) {
	return s.anchors.GetByRef(ctx, kind, refID)
}

// Close закрывает соединение с базой данных
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
