package observability

// Schema creates the events and metrics tables. Timestamps are unix
// milliseconds like the rest of the sitegen schema.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
    event_id   TEXT PRIMARY KEY,
    kind       TEXT NOT NULL,
    level      TEXT NOT NULL DEFAULT 'info',
    user_id    TEXT NOT NULL DEFAULT '',
    project_id TEXT NOT NULL DEFAULT '',
    entity_id  TEXT NOT NULL DEFAULT '',
    message    TEXT NOT NULL DEFAULT '',
    details    TEXT,
    success    INTEGER NOT NULL DEFAULT 1,
    trace_id   TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_project ON events(project_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_user ON events(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);

CREATE TABLE IF NOT EXISTS metrics (
    name       TEXT NOT NULL,
    ts         INTEGER NOT NULL,
    value      REAL NOT NULL,
    labels     TEXT,
    unit       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_ts ON metrics(name, ts DESC);
`
