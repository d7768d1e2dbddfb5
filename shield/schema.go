package shield

// Schema creates the tables read by RateLimiter and MaintenanceMode and
// seeds the default limits. Statements are idempotent and existing rows
// are never overwritten, so operators can tune limits in place.
const Schema = `
CREATE TABLE IF NOT EXISTS rate_limits (
    rule           TEXT PRIMARY KEY,
    max_requests   INTEGER NOT NULL DEFAULT 60,
    window_seconds INTEGER NOT NULL DEFAULT 60,
    enabled        INTEGER NOT NULL DEFAULT 1
);

INSERT OR IGNORE INTO rate_limits (rule, max_requests, window_seconds) VALUES
    ('generate', 10, 3600),
    ('modify',   30, 3600),
    ('enhance',  30, 3600),
    ('deploy',   10, 3600),
    ('login',    10, 300);

CREATE TABLE IF NOT EXISTS maintenance (
    id      INTEGER PRIMARY KEY CHECK (id = 1),
    active  INTEGER NOT NULL DEFAULT 0,
    message TEXT NOT NULL DEFAULT 'Service under maintenance, please retry later.'
);

INSERT OR IGNORE INTO maintenance (id) VALUES (1);
`
