package pending

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"
)

func newMockPostgres(t *testing.T) (*PostgresBackend, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &PostgresBackend{
		db:        db,
		namespace: "testnet",
		logger:    zap.NewNop(),
	}, mock
}

func TestPostgresBackend_Put(t *testing.T) {
	s, mock := newMockPostgres(t)
	p := testPair("pair-1", 123, time.Now())

	mock.ExpectExec("INSERT INTO pending_pairs").
		WithArgs("testnet", p.ID, p.BuyOrderID, p.BuyClientOrderID, p.BuyPrice,
			p.SellPrice, p.Quantity, p.InvestedAmount, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Put(context.Background(), p)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresBackend_PutError(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec("INSERT INTO pending_pairs").
		WillReturnError(errors.New("connection reset"))

	err := s.Put(context.Background(), testPair("pair-1", 123, time.Now()))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestPostgresBackend_DeleteScopedToNamespace(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec("DELETE FROM pending_pairs WHERE namespace = \\$1 AND id = \\$2").
		WithArgs("testnet", "pair-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Delete(context.Background(), "pair-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresBackend_Load(t *testing.T) {
	s, mock := newMockPostgres(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "buy_order_id", "buy_client_order_id", "buy_price", "sell_price",
		"quantity", "invested_amount", "created_at",
	}).
		AddRow("a", int64(1), "gb-a", 95000.0, 97000.0, 0.02, 1900.0, created).
		AddRow("b", int64(2), "gb-b", 94000.0, 96000.0, 0.01, 940.0, created)

	mock.ExpectQuery("SELECT (.+) FROM pending_pairs").
		WithArgs("testnet").
		WillReturnRows(rows)

	pairs, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	if pairs[0].ID != "a" || pairs[0].BuyOrderID != 1 || pairs[0].SellPrice != 97000 {
		t.Errorf("unexpected first pair: %+v", pairs[0])
	}
	if !pairs[1].CreatedAt.Equal(created) {
		t.Errorf("expected created_at %v, got %v", created, pairs[1].CreatedAt)
	}
}

func TestPostgresBackend_EnsureSchema(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS pending_pairs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.EnsureSchema(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestPostgresBackend_Close(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectClose()

	err := s.Close()
	if err != nil {
		t.Errorf("expected no error on close, got %v", err)
	}
}
