// ============================================================================
// archive/clickhouse.go - Durable alert history (optional)
// ============================================================================
package archive

import (
	"context"
	"fmt"

	"solana-pool-sentinel/internal/cache"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"
)

// Store writes completed alerts to ClickHouse so detections survive
// restarts. The pipeline itself never reads it back; it exists for
// offline analysis.
type Store struct {
	conn   driver.Conn
	logger *logrus.Logger
}

// Config holds ClickHouse connection settings.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
	Logger   *logrus.Logger
}

// NewStore connects and pings ClickHouse.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	cfg.Logger.WithField("addr", cfg.Addr).Info("connected to ClickHouse")
	return &Store{conn: conn, logger: cfg.Logger}, nil
}

// Archive inserts one completed alert.
func (s *Store) Archive(ctx context.Context, entry *cache.AlertEntry) error {
	query := `
		INSERT INTO alerts (
			signature, mint, score, level, state, sent_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		entry.Signature,
		entry.Mint,
		entry.Score,
		string(entry.Level),
		string(entry.State),
		entry.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
