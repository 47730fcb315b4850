package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/kirillm/verigate/internal/config"
	"github.com/kirillm/verigate/internal/domain"
)

func TestDSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host: "db", Port: 5433, User: "gate", Password: "secret", DBName: "verigate", SSLMode: "disable",
	}
	want := "host=db port=5433 user=gate password=secret dbname=verigate sslmode=disable"
	if got := DSN(cfg); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

// Интеграционный тест: требует VERIGATE_TEST_DSN
func openTestStorage(t *testing.T) (*PostgresStorage, *sql.DB) {
	t.Helper()
	dsn := os.Getenv("VERIGATE_TEST_DSN")
	if dsn == "" {
		t.Skip("VERIGATE_TEST_DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewWithDB(db)
	if err := s.migrate(context.Background()); err != nil {
		t.Fatalf("migrate() error = %v", err)
	}
	return s, db
}

func TestPostgresStorage_Positions(t *testing.T) {
	s, db := openTestStorage(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx,
		`INSERT INTO positions (symbol, quantity_signed) VALUES ('ITEST', -12.5)
		 ON CONFLICT (symbol) DO UPDATE SET quantity_signed = EXCLUDED.quantity_signed`); err != nil {
		t.Fatal(err)
	}

	qty, err := s.GetPositionQty(ctx, "itest")
	if err != nil {
		t.Fatalf("GetPositionQty() error = %v", err)
	}
	if qty != -12.5 {
		t.Errorf("qty = %v, want -12.5", qty)
	}

	flat, err := s.GetPositionQty(ctx, "NO_SUCH_SYMBOL")
	if err != nil || flat != 0 {
		t.Errorf("missing position = (%v, %v), want (0, nil)", flat, err)
	}
}

func TestPostgresStorage_AuditRoundTrip(t *testing.T) {
	s, _ := openTestStorage(t)
	ctx := context.Background()

	rec := &domain.AdmissionRecord{
		TraceID:  "itest-trace",
		Symbol:   "AAPL",
		Side:     "sell",
		Quantity: 5,
		Decision: string(domain.DecisionApproveReductionOnly),
		Degraded: true,
		Reasons:  []string{"risk degraded"},
	}
	if err := s.SaveAdmission(ctx, rec); err != nil {
		t.Fatalf("SaveAdmission() error = %v", err)
	}
	if rec.ID == 0 {
		t.Error("expected generated id")
	}

	got, err := s.GetAdmissionsByTrace(ctx, "itest-trace")
	if err != nil || len(got) == 0 {
		t.Fatalf("GetAdmissionsByTrace() = %v, %v", got, err)
	}
	if got[len(got)-1].Reasons[0] != "risk degraded" {
		t.Errorf("reasons = %v", got[len(got)-1].Reasons)
	}

	anchor := &domain.AnchorRecord{Kind: domain.AnchorKindPreview, RefID: "itest-preview", TraceID: "itest-trace"}
	if err := s.SaveAnchorReceipt(ctx, anchor); err != nil {
		t.Fatalf("SaveAnchorReceipt() error = %v", err)
	}
	receipts, err := s.GetAnchorReceipts(ctx, domain.AnchorKindPreview, "itest-preview")
	if err != nil || len(receipts) == 0 {
		t.Fatalf("GetAnchorReceipts() = %v, %v", receipts, err)
	}
	if receipts[0].TxHash != "" {
		t.Errorf("absent anchor should read back empty, got %q", receipts[0].TxHash)
	}
}
