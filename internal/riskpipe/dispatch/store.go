package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// Store is the durable, append-only alert audit log.
type Store interface {
	Append(ctx context.Context, a *model.Alert) (int64, error)
}

// PGStore writes alerts to Postgres via the pgx stdlib driver.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dispatch: postgres dsn is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(8)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PGStore{db: db}, nil
}

func (s *PGStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// EnsureSchema creates the alerts table. DDL lives in code so the binary is
// self-contained; there is no migration path for an append-only log.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS alerts (
  id           bigserial PRIMARY KEY,
  alert_id     text        NOT NULL UNIQUE,
  alert_type   text        NOT NULL,
  severity     text        NOT NULL,
  title        text        NOT NULL,
  description  text        NOT NULL DEFAULT '',
  address      text        NOT NULL DEFAULT '',
  tx_hash      text        NOT NULL DEFAULT '',
  risk_score   double precision NOT NULL DEFAULT 0,
  metadata     jsonb,
  created_at   timestamptz NOT NULL,
  acknowledged boolean     NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_address ON alerts(address);
CREATE INDEX IF NOT EXISTS idx_alerts_type_created ON alerts(alert_type, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *PGStore) Append(ctx context.Context, a *model.Alert) (int64, error) {
	var meta []byte
	if a.Metadata != nil {
		b, err := json.Marshal(a.Metadata)
		if err != nil {
			return 0, fmt.Errorf("dispatch: marshal alert metadata: %w", err)
		}
		meta = b
	}

	const ins = `
INSERT INTO alerts (alert_id, alert_type, severity, title, description,
                    address, tx_hash, risk_score, metadata, created_at, acknowledged)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, ins,
		a.AlertID, a.AlertType, string(a.Severity), a.Title, a.Description,
		a.Address, a.TxHash, a.RiskScore, meta, a.CreatedAt, a.Acknowledged,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("dispatch: append alert: %w", err)
	}
	return id, nil
}

// Acknowledge marks an alert acknowledged; the only mutation the audit log
// permits.
func (s *PGStore) Acknowledge(ctx context.Context, alertID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET acknowledged = true WHERE alert_id = $1`, alertID)
	if err != nil {
		return fmt.Errorf("dispatch: acknowledge alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
