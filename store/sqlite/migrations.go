package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the dues store (SQLite).
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
    monthly_fee   INTEGER,
    is_monthly    INTEGER NOT NULL DEFAULT 0,
    active        INTEGER NOT NULL DEFAULT 1,
    anonymized_at TEXT,
    metadata      TEXT NOT NULL DEFAULT '{}',
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_players_key ON dues_players (key);
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
    year       INTEGER NOT NULL,
    month      INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
    amount     INTEGER NOT NULL DEFAULT 0,
    currency   TEXT NOT NULL DEFAULT 'EUR',
    paid       INTEGER NOT NULL DEFAULT 0,
    paid_on    TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
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
    id           TEXT PRIMARY KEY,
    player_id    TEXT NOT NULL REFERENCES dues_players (id),
    session_date TEXT NOT NULL,
    paid         INTEGER NOT NULL DEFAULT 0,
    receipt_id   TEXT,
    source       TEXT NOT NULL DEFAULT 'staff',
    created_at   TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_attendance_player_date ON dues_attendance (player_id, session_date);
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
    starts_on  TEXT NOT NULL,
    ends_on    TEXT,
    currency   TEXT NOT NULL DEFAULT 'EUR',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS dues_categories (
    id       TEXT PRIMARY KEY,
    event_id TEXT NOT NULL REFERENCES dues_events (id),
    name     TEXT NOT NULL DEFAULT '',
    fee      INTEGER
);

CREATE TABLE IF NOT EXISTS dues_registrations (
    id           TEXT PRIMARY KEY,
    event_id     TEXT NOT NULL REFERENCES dues_events (id),
    player_id    TEXT NOT NULL REFERENCES dues_players (id),
    entries      TEXT NOT NULL DEFAULT '[]',
    fee_override INTEGER,
    paid         INTEGER NOT NULL DEFAULT 0,
    paid_on      TEXT,
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dues_categories_event ON dues_categories (event_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_registrations_event_player ON dues_registrations (event_id, player_id);
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
    seq            INTEGER NOT NULL,
    number         TEXT NOT NULL DEFAULT '',
    kind           TEXT NOT NULL,
    source         TEXT NOT NULL DEFAULT 'manual',
    player_id      TEXT NOT NULL REFERENCES dues_players (id),
    amount         INTEGER NOT NULL DEFAULT 0,
    currency       TEXT NOT NULL DEFAULT 'EUR',
    method         TEXT NOT NULL DEFAULT '',
    note           TEXT NOT NULL DEFAULT '',
    year           INTEGER NOT NULL DEFAULT 0,
    month          INTEGER NOT NULL DEFAULT 0,
    sessions_paid  INTEGER NOT NULL DEFAULT 0,
    sessions_taken INTEGER NOT NULL DEFAULT 0,
    links          TEXT NOT NULL DEFAULT '[]',
    paid_at        TEXT NOT NULL,
    created_at     TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_receipts_seq ON dues_receipts (seq);
CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_receipts_number ON dues_receipts (number) WHERE number <> '';
CREATE INDEX IF NOT EXISTS idx_dues_receipts_player ON dues_receipts (player_id, paid_at);
CREATE INDEX IF NOT EXISTS idx_dues_receipts_paid_at ON dues_receipts (paid_at, seq);

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
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS dues_settlements;
DROP TABLE IF EXISTS dues_receipts;
`)
				return err
			},
		},
	)
}
