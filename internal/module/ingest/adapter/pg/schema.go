package pg

import (
	"context"
	"fmt"

	"github.com/harigane/jpxsync/internal/platform/database"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS job_runs (
    id            UUID PRIMARY KEY,
    job_name      TEXT NOT NULL,
    target_date   DATE,
    status        TEXT NOT NULL,
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ,
    error_message TEXT,
    metadata      JSONB,
    UNIQUE (job_name, target_date)
);
CREATE INDEX IF NOT EXISTS idx_job_runs_job_status ON job_runs (job_name, status);
CREATE INDEX IF NOT EXISTS idx_job_runs_started_at ON job_runs (started_at);

CREATE TABLE IF NOT EXISTS job_run_items (
    run_id        UUID NOT NULL REFERENCES job_runs (id) ON DELETE CASCADE,
    dataset       TEXT NOT NULL,
    status        TEXT NOT NULL,
    row_count     INTEGER NOT NULL DEFAULT 0,
    page_count    INTEGER NOT NULL DEFAULT 0,
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ,
    error_message TEXT,
    PRIMARY KEY (run_id, dataset)
);

CREATE TABLE IF NOT EXISTS job_locks (
    job_name     TEXT PRIMARY KEY,
    token        TEXT NOT NULL,
    locked_until TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS job_heartbeats (
    job_name         TEXT PRIMARY KEY,
    last_seen_at     TIMESTAMPTZ NOT NULL,
    last_status      TEXT NOT NULL,
    last_run_id      UUID,
    last_target_date DATE,
    last_error       TEXT,
    metadata         JSONB
);

CREATE TABLE IF NOT EXISTS trading_calendar (
    date             DATE PRIMARY KEY,
    holiday_division TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_quotes (
    code              TEXT NOT NULL,
    trade_date        DATE NOT NULL,
    open              DOUBLE PRECISION,
    high              DOUBLE PRECISION,
    low               DOUBLE PRECISION,
    close             DOUBLE PRECISION,
    volume            DOUBLE PRECISION,
    turnover_value    DOUBLE PRECISION,
    adjustment_factor DOUBLE PRECISION NOT NULL DEFAULT 1,
    adjustment_close  DOUBLE PRECISION,
    PRIMARY KEY (code, trade_date)
);
CREATE INDEX IF NOT EXISTS idx_daily_quotes_trade_date ON daily_quotes (trade_date);

CREATE TABLE IF NOT EXISTS earnings_announcements (
    code              TEXT NOT NULL,
    announcement_date DATE NOT NULL,
    company_name      TEXT,
    fiscal_year       TEXT,
    fiscal_quarter    TEXT,
    section           TEXT,
    PRIMARY KEY (code, announcement_date)
);

CREATE TABLE IF NOT EXISTS investor_flows (
    section               TEXT NOT NULL,
    start_date            DATE NOT NULL,
    end_date              DATE,
    proprietary_sales     DOUBLE PRECISION,
    proprietary_purchases DOUBLE PRECISION,
    individuals_sales     DOUBLE PRECISION,
    individuals_purchases DOUBLE PRECISION,
    foreigners_sales      DOUBLE PRECISION,
    foreigners_purchases  DOUBLE PRECISION,
    total_sales           DOUBLE PRECISION,
    total_purchases       DOUBLE PRECISION,
    PRIMARY KEY (section, start_date)
);
`

// EnsureSchema は全テーブルを作成します（冪等）
// マイグレーションツールを持たない規模なのでIF NOT EXISTSのDDLで足りる
func EnsureSchema(ctx context.Context, db database.DBTX) error {
	if _, err := db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
