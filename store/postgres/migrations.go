package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the dues store.
var Migrations = migrate.NewGroup("dues")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_dues_players",
			Version: "20240601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dues_players (
    id            TEXT PRIMARY KEY,
    key           TEXT NOT NULL,
    first_name    TEXT NOT NULL DEFAULT '',
    last_name     TEXT NOT NULL DEFAULT '',
    belt          TEXT NOT NULL DEFAULT '',
    email         TEXT NOT NULL DEFAULT '',
    phone         TEXT NOT NULL DEFAULT '',
    monthly_fee   BIGINT,
    is_monthly    BOOLEAN NOT NULL DEFAULT FALSE,
    active        BOOLEAN NOT NULL DEFAULT TRUE,
    anonymized_at TIMESTAMPTZ,
    metadata      JSONB NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_players_key ON dues_players (key);
CREATE INDEX IF NOT EXISTS idx_dues_players_name ON dues_players (lower(last_name), lower(first_name));
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dues_players`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dues_dues",
			Version: "20240601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dues_dues (
    id         TEXT PRIMARY KEY,
    player_id  TEXT NOT NULL REFERENCES dues_players (id),
    year       INT NOT NULL,
    month      INT NOT NULL CHECK (month BETWEEN 1 AND 12),
    amount     BIGINT NOT NULL DEFAULT 0,
    currency   TEXT NOT NULL DEFAULT 'EUR',
    paid       BOOLEAN NOT NULL DEFAULT FALSE,
    paid_on    DATE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_dues_player_month ON dues_dues (player_id, year, month);
CREATE INDEX IF NOT EXISTS idx_dues_dues_month ON dues_dues (year, month);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dues_dues`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dues_attendance",
			Version: "20240601000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dues_attendance (
    id         TEXT PRIMARY KEY,
    player_id  TEXT NOT NULL REFERENCES dues_players (id),
    session_date DATE NOT NULL,
    paid       BOOLEAN NOT NULL DEFAULT FALSE,
    receipt_id TEXT,
    source     TEXT NOT NULL DEFAULT 'staff',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_attendance_player_date ON dues_attendance (player_id, session_date);
CREATE INDEX IF NOT EXISTS idx_dues_attendance_unpaid ON dues_attendance (player_id, session_date) WHERE NOT paid;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dues_attendance`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dues_events",
			Version: "20240601000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dues_events (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL DEFAULT '',
    location   TEXT NOT NULL DEFAULT '',
    starts_on  DATE NOT NULL,
    ends_on    DATE,
    currency   TEXT NOT NULL DEFAULT 'EUR',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS dues_categories (
    id       TEXT PRIMARY KEY,
    event_id TEXT NOT NULL REFERENCES dues_events (id),
    name     TEXT NOT NULL DEFAULT '',
    fee      BIGINT
);

CREATE TABLE IF NOT EXISTS dues_registrations (
    id           TEXT PRIMARY KEY,
    event_id     TEXT NOT NULL REFERENCES dues_events (id),
    player_id    TEXT NOT NULL REFERENCES dues_players (id),
    entries      JSONB NOT NULL DEFAULT '[]',
    fee_override BIGINT,
    paid         BOOLEAN NOT NULL DEFAULT FALSE,
    paid_on      DATE,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_dues_events_starts_on ON dues_events (starts_on);
CREATE INDEX IF NOT EXISTS idx_dues_categories_event ON dues_categories (event_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_registrations_event_player ON dues_registrations (event_id, player_id);
CREATE INDEX IF NOT EXISTS idx_dues_registrations_player ON dues_registrations (player_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS dues_registrations;
DROP TABLE IF EXISTS dues_categories;
DROP TABLE IF EXISTS dues_events;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dues_receipts",
			Version: "20240601000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dues_receipts (
    id             TEXT PRIMARY KEY,
    seq            BIGSERIAL NOT NULL,
    number         TEXT NOT NULL DEFAULT '',
    kind           TEXT NOT NULL,
    source         TEXT NOT NULL DEFAULT 'manual',
    player_id      TEXT NOT NULL REFERENCES dues_players (id),
    amount         BIGINT NOT NULL DEFAULT 0,
    currency       TEXT NOT NULL DEFAULT 'EUR',
    method         TEXT NOT NULL DEFAULT '',
    note           TEXT NOT NULL DEFAULT '',
    year           INT NOT NULL DEFAULT 0,
    month          INT NOT NULL DEFAULT 0,
    sessions_paid  INT NOT NULL DEFAULT 0,
    sessions_taken INT NOT NULL DEFAULT 0,
    links          JSONB NOT NULL DEFAULT '[]',
    paid_at        TIMESTAMPTZ NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_receipts_seq ON dues_receipts (seq);
CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_receipts_number ON dues_receipts (number) WHERE number <> '';
CREATE INDEX IF NOT EXISTS idx_dues_receipts_player ON dues_receipts (player_id, paid_at);
CREATE INDEX IF NOT EXISTS idx_dues_receipts_paid_at ON dues_receipts (paid_at, seq);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dues_receipts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dues_settlements",
			Version: "20240601000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dues_settlements (
    target_type TEXT NOT NULL,
    target_id   TEXT NOT NULL,
    receipt_id  TEXT NOT NULL REFERENCES dues_receipts (id),
    PRIMARY KEY (target_type, target_id)
);

CREATE INDEX IF NOT EXISTS idx_dues_settlements_receipt ON dues_settlements (receipt_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dues_settlements`)
				return err
			},
		},
	)
}
