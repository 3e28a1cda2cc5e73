package store

const schema = `
CREATE TABLE IF NOT EXISTS snapshot_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    generation INTEGER NOT NULL,
    committed_at TIMESTAMP
);

INSERT OR IGNORE INTO snapshot_state (id, generation) VALUES (1, 0);

CREATE TABLE IF NOT EXISTS records (
    bundle_id TEXT NOT NULL,
    version TEXT NOT NULL,
    variant TEXT NOT NULL,
    tweak_key TEXT NOT NULL,
    tweak_name TEXT,
    build TEXT,
    size_bytes INTEGER,
    asset_ref TEXT,
    icon_ref TEXT,
    min_os TEXT,
    entitlements TEXT,
    screenshots TEXT,
    discovered_at TIMESTAMP NOT NULL,
    PRIMARY KEY (bundle_id, version, variant, tweak_key)
);

CREATE TABLE IF NOT EXISTS entries (
    bundle_id TEXT NOT NULL,
    version_key TEXT NOT NULL,
    state TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (bundle_id, version_key)
);

CREATE TABLE IF NOT EXISTS passes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at TIMESTAMP NOT NULL,
    committed_at TIMESTAMP NOT NULL,
    records_processed INTEGER,
    records_dropped INTEGER,
    corrupt_count INTEGER,
    removed_count INTEGER,
    dropped_bundle_ids TEXT
);

CREATE INDEX IF NOT EXISTS idx_records_bundle ON records(bundle_id);
CREATE INDEX IF NOT EXISTS idx_records_discovered ON records(discovered_at);
CREATE INDEX IF NOT EXISTS idx_entries_state ON entries(state);
`
