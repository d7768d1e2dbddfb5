package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Metric names recorded by sitegen.
const (
	MetricGenerationDuration = "generation_duration_ms"
	MetricGenerationFiles    = "generation_files"
	MetricGenerationBytes    = "generation_output_bytes"
	MetricImageRewrites      = "image_rewrites"
	MetricHTMLRepairs        = "html_repairs"
	MetricDeployDuration     = "deploy_duration_ms"
	MetricLLMDuration        = "llm_call_duration_ms"
)

// Metric is a single datapoint.
type Metric struct {
	Name      string            `json:"name"`
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Unit      string            `json:"unit,omitempty"`
}

// Metrics buffers datapoints and flushes them to SQLite in batches. A nil
// *Metrics discards everything, so callers never check for it.
type Metrics struct {
	db            *sql.DB
	bufferSize    int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []Metric

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewMetrics starts the flush loop. Zero arguments fall back to 100
// datapoints and five seconds.
func NewMetrics(db *sql.DB, bufferSize int, flushInterval time.Duration) *Metrics {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	m := &Metrics{
		db:            db,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		buffer:        make([]Metric, 0, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go m.flushLoop()
	return m
}

// Record queues a datapoint.
func (m *Metrics) Record(name string, value float64, unit string, labels map[string]string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = append(m.buffer, Metric{Name: name, Timestamp: time.Now(), Value: value, Labels: labels, Unit: unit})
	if len(m.buffer) >= m.bufferSize {
		m.flushLocked()
	}
}

// Duration records d in milliseconds.
func (m *Metrics) Duration(name string, d time.Duration, labels map[string]string) {
	m.Record(name, float64(d.Milliseconds()), "ms", labels)
}

// Flush writes buffered datapoints now.
func (m *Metrics) Flush() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.flushLocked()
	m.mu.Unlock()
}

// Close flushes and stops the background goroutine. It is safe to call
// more than once.
func (m *Metrics) Close() error {
	if m == nil {
		return nil
	}
	m.once.Do(func() {
		close(m.stop)
		<-m.done
	})
	return nil
}

// Query returns datapoints named name recorded at or after since, newest
// first. An empty name matches every metric.
func (m *Metrics) Query(ctx context.Context, name string, since time.Time, limit int) ([]Metric, error) {
	q := `SELECT name, ts, value, labels, unit FROM metrics WHERE ts >= ?`
	args := []any{since.UnixMilli()}
	if name != "" {
		q += ` AND name = ?`
		args = append(args, name)
	}
	q += ` ORDER BY ts DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query metrics: %w", err)
	}
	defer rows.Close()

	var out []Metric
	for rows.Next() {
		var mt Metric
		var ts int64
		var labels sql.NullString
		if err := rows.Scan(&mt.Name, &ts, &mt.Value, &labels, &mt.Unit); err != nil {
			return nil, fmt.Errorf("observability: scan metric: %w", err)
		}
		mt.Timestamp = time.UnixMilli(ts)
		if labels.Valid {
			json.Unmarshal([]byte(labels.String), &mt.Labels)
		}
		out = append(out, mt)
	}
	return out, rows.Err()
}

// Summary aggregates one metric over a period.
type Summary struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P95   float64 `json:"p95"`
}

// Summarize aggregates every datapoint of name recorded since since.
func (m *Metrics) Summarize(ctx context.Context, name string, since time.Time) (Summary, error) {
	points, err := m.Query(ctx, name, since, 0)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Name: name, Count: len(points)}
	if len(points) == 0 {
		return s, nil
	}
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
		s.Sum += p.Value
	}
	sort.Float64s(values)
	s.Min = values[0]
	s.Max = values[len(values)-1]
	s.Avg = s.Sum / float64(len(values))
	s.P95 = values[(len(values)*95+99)/100-1]
	return s, nil
}

func (m *Metrics) flushLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			m.Flush()
			return
		case <-ticker.C:
			m.Flush()
		}
	}
}

func (m *Metrics) flushLocked() {
	if len(m.buffer) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("observability: metrics begin", "error", err)
		return
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO metrics (name, ts, value, labels, unit) VALUES (?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		slog.Error("observability: metrics prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, mt := range m.buffer {
		var labels sql.NullString
		if len(mt.Labels) > 0 {
			if b, err := json.Marshal(mt.Labels); err == nil {
				labels = sql.NullString{String: string(b), Valid: true}
			}
		}
		if _, err := stmt.ExecContext(ctx, mt.Name, mt.Timestamp.UnixMilli(), mt.Value, labels, mt.Unit); err != nil {
			slog.Error("observability: metrics insert", "error", err, "metric", mt.Name)
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("observability: metrics commit", "error", err)
	}
	m.buffer = m.buffer[:0]
}
