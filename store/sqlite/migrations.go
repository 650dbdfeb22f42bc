package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Reservoir store (SQLite).
var Migrations = migrate.NewGroup("reservoir")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_reservoir_pools",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS reservoir_pools (
    id                         TEXT PRIMARY KEY,
    owner_id                   TEXT NOT NULL DEFAULT '',
    active_subscription        INTEGER NOT NULL DEFAULT 1,
    quantity                   INTEGER NOT NULL DEFAULT 0,
    start_date                 TEXT NOT NULL DEFAULT (datetime('now')),
    end_date                   TEXT NOT NULL DEFAULT (datetime('now')),
    product_id                 TEXT NOT NULL DEFAULT '',
    product_name               TEXT NOT NULL DEFAULT '',
    derived_product_id         TEXT NOT NULL DEFAULT '',
    derived_product_name       TEXT NOT NULL DEFAULT '',
    provided_products          TEXT NOT NULL DEFAULT '[]',
    derived_provided_products  TEXT NOT NULL DEFAULT '[]',
    attributes                 TEXT NOT NULL DEFAULT '{}',
    product_attributes         TEXT NOT NULL DEFAULT '{}',
    derived_product_attributes TEXT NOT NULL DEFAULT '{}',
    source_entitlement_id      TEXT NOT NULL DEFAULT '',
    source_stack_consumer_id   TEXT NOT NULL DEFAULT '',
    source_stack_id            TEXT NOT NULL DEFAULT '',
    source_sub_id              TEXT NOT NULL DEFAULT '',
    source_sub_key             TEXT NOT NULL DEFAULT '',
    contract_number            TEXT NOT NULL DEFAULT '',
    account_number             TEXT NOT NULL DEFAULT '',
    order_number               TEXT NOT NULL DEFAULT '',
    restricted_to_username     TEXT NOT NULL DEFAULT '',
    branding                   TEXT NOT NULL DEFAULT '[]',
    type                       TEXT NOT NULL DEFAULT 'normal',
    version                    INTEGER NOT NULL DEFAULT 0,
    marked_for_delete          INTEGER NOT NULL DEFAULT 0,
    created_at                 TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at                 TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_reservoir_pools_owner ON reservoir_pools (owner_id);
CREATE INDEX IF NOT EXISTS idx_reservoir_pools_owner_product ON reservoir_pools (owner_id, product_id);
CREATE INDEX IF NOT EXISTS idx_reservoir_pools_source_ent ON reservoir_pools (source_entitlement_id) WHERE source_entitlement_id != '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_reservoir_pools_source_stack ON reservoir_pools (source_stack_consumer_id, source_stack_id) WHERE source_stack_id != '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_reservoir_pools_source_sub ON reservoir_pools (source_sub_id, source_sub_key) WHERE source_sub_id != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS reservoir_pools`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_reservoir_entitlements",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS reservoir_entitlements (
    id          TEXT PRIMARY KEY,
    pool_id     TEXT NOT NULL DEFAULT '',
    consumer_id TEXT NOT NULL DEFAULT '',
    owner_id    TEXT NOT NULL DEFAULT '',
    quantity    INTEGER NOT NULL DEFAULT 0,
    stack_id    TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_reservoir_ents_pool ON reservoir_entitlements (pool_id);
CREATE INDEX IF NOT EXISTS idx_reservoir_ents_consumer ON reservoir_entitlements (consumer_id);
CREATE INDEX IF NOT EXISTS idx_reservoir_ents_stack ON reservoir_entitlements (consumer_id, stack_id) WHERE stack_id != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS reservoir_entitlements`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_reservoir_consumers",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS reservoir_consumers (
    id         TEXT PRIMARY KEY,
    owner_id   TEXT NOT NULL DEFAULT '',
    name       TEXT NOT NULL DEFAULT '',
    username   TEXT NOT NULL DEFAULT '',
    type_label TEXT NOT NULL DEFAULT 'system',
    manifest   INTEGER NOT NULL DEFAULT 0,
    facts      TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_reservoir_consumers_owner ON reservoir_consumers (owner_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS reservoir_consumers`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_reservoir_products",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS reservoir_products (
    owner_id              TEXT NOT NULL,
    id                    TEXT NOT NULL,
    name                  TEXT NOT NULL DEFAULT '',
    attributes            TEXT NOT NULL DEFAULT '{}',
    content               TEXT NOT NULL DEFAULT '[]',
    dependent_product_ids TEXT NOT NULL DEFAULT '[]',
    created_at            TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at            TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (owner_id, id)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS reservoir_products`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_reservoir_subscriptions",
			Version: "20250101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS reservoir_subscriptions (
    id                           TEXT PRIMARY KEY,
    owner_id                     TEXT NOT NULL DEFAULT '',
    product_id                   TEXT NOT NULL DEFAULT '',
    product_name                 TEXT NOT NULL DEFAULT '',
    quantity                     INTEGER NOT NULL DEFAULT 0,
    start_date                   TEXT NOT NULL DEFAULT (datetime('now')),
    end_date                     TEXT NOT NULL DEFAULT (datetime('now')),
    contract_number              TEXT NOT NULL DEFAULT '',
    account_number               TEXT NOT NULL DEFAULT '',
    order_number                 TEXT NOT NULL DEFAULT '',
    provided_product_ids         TEXT NOT NULL DEFAULT '[]',
    derived_product_id           TEXT NOT NULL DEFAULT '',
    derived_provided_product_ids TEXT NOT NULL DEFAULT '[]',
    created_at                   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at                   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_reservoir_subs_owner ON reservoir_subscriptions (owner_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS reservoir_subscriptions`)
				return err
			},
		},
	)
}
