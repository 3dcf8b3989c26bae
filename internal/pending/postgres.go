package pending

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresBackend stores pairs in the pending_pairs table. Every statement
// is scoped to one namespace.
type PostgresBackend struct {
	db        *sql.DB
	namespace string
	logger    *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host      string
	Port      string
	User      string
	Password  string
	Database  string
	SSLMode   string
	Namespace string
	Logger    *zap.Logger
}

const createPendingPairsTable = `
	CREATE TABLE IF NOT EXISTS pending_pairs (
		namespace           TEXT NOT NULL,
		id                  TEXT NOT NULL,
		buy_order_id        BIGINT NOT NULL,
		buy_client_order_id TEXT NOT NULL,
		buy_price           DOUBLE PRECISION NOT NULL,
		sell_price          DOUBLE PRECISION NOT NULL,
		quantity            DOUBLE PRECISION NOT NULL,
		invested_amount     DOUBLE PRECISION NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (namespace, id)
	)
`

// NewPostgresBackend connects to PostgreSQL and ensures the table exists.
func NewPostgresBackend(ctx context.Context, cfg *PostgresConfig) (*PostgresBackend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresBackend{
		db:        db,
		namespace: cfg.Namespace,
		logger:    cfg.Logger,
	}

	err = s.EnsureSchema(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	cfg.Logger.Info("postgres-pending-store-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.String("namespace", cfg.Namespace))

	return s, nil
}

// EnsureSchema creates the pending_pairs table if it does not exist.
func (s *PostgresBackend) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createPendingPairsTable)
	if err != nil {
		return fmt.Errorf("create pending_pairs table: %w", err)
	}
	return nil
}

// Load returns every pair in the namespace.
func (s *PostgresBackend) Load(ctx context.Context) ([]Pair, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, buy_order_id, buy_client_order_id, buy_price, sell_price,
		       quantity, invested_amount, created_at
		FROM pending_pairs
		WHERE namespace = $1
		ORDER BY created_at, id
	`, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("query pending pairs: %w", err)
	}
	defer rows.Close()

	var pairs []Pair
	for rows.Next() {
		var p Pair
		err = rows.Scan(&p.ID, &p.BuyOrderID, &p.BuyClientOrderID, &p.BuyPrice,
			&p.SellPrice, &p.Quantity, &p.InvestedAmount, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan pending pair: %w", err)
		}
		pairs = append(pairs, p)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate pending pairs: %w", err)
	}

	return pairs, nil
}

// Put inserts or replaces p.
func (s *PostgresBackend) Put(ctx context.Context, p Pair) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_pairs (
			namespace, id, buy_order_id, buy_client_order_id, buy_price,
			sell_price, quantity, invested_amount, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (namespace, id) DO UPDATE SET
			buy_order_id = EXCLUDED.buy_order_id,
			buy_client_order_id = EXCLUDED.buy_client_order_id,
			buy_price = EXCLUDED.buy_price,
			sell_price = EXCLUDED.sell_price,
			quantity = EXCLUDED.quantity,
			invested_amount = EXCLUDED.invested_amount
	`,
		s.namespace,
		p.ID,
		p.BuyOrderID,
		p.BuyClientOrderID,
		p.BuyPrice,
		p.SellPrice,
		p.Quantity,
		p.InvestedAmount,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert pending pair: %w", err)
	}
	return nil
}

// Delete removes the pair.
func (s *PostgresBackend) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_pairs WHERE namespace = $1 AND id = $2`,
		s.namespace, id)
	if err != nil {
		return fmt.Errorf("delete pending pair: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresBackend) Close() error {
	s.logger.Info("closing-postgres-pending-store")
	return s.db.Close()
}
