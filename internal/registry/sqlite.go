package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/fabricgw/gateway/pkg/fabric"
)

// SQLiteOption configures a SQLiteRegistry.
type SQLiteOption func(*SQLiteRegistry)

// WithLogger attaches a structured logger; if unset, logging is a no-op.
func WithLogger(l zerolog.Logger) SQLiteOption {
	return func(s *SQLiteRegistry) { s.logger = l }
}

// SQLiteRegistry is the durable Registry variant: persistent tables for
// agents, capabilities, tools, health history, and call audit logs (§6).
type SQLiteRegistry struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteRegistry opens (creating if absent) a SQLite-backed registry at
// dbPath. A single connection is kept open so all goroutines serialize
// through it, avoiding SQLITE_BUSY under concurrent writers.
func NewSQLiteRegistry(dbPath string, opts ...SQLiteOption) (*SQLiteRegistry, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	r := &SQLiteRegistry{db: db, logger: zerolog.Nop()}
	for _, o := range opts {
		o(r)
	}
	if err := r.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRegistry) migrate(ctx context.Context) error {
	start := time.Now()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			version TEXT NOT NULL,
			description TEXT,
			runtime_kind TEXT NOT NULL,
			endpoint_transport TEXT NOT NULL,
			endpoint_uri TEXT NOT NULL,
			tags TEXT,
			trust_tier TEXT NOT NULL,
			status TEXT NOT NULL,
			last_seen_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS capabilities (
			agent_id TEXT NOT NULL REFERENCES agents(agent_id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT,
			streaming INTEGER NOT NULL,
			modalities TEXT,
			input_schema TEXT,
			output_schema TEXT,
			max_timeout_ms INTEGER,
			PRIMARY KEY (agent_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS tools (
			tool_id TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			provider TEXT NOT NULL,
			capabilities TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS health_checks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			status TEXT NOT NULL,
			latency_ms INTEGER NOT NULL,
			checked_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS call_logs (
			trace_id TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT NOT NULL,
			request TEXT,
			response TEXT,
			started_at INTEGER NOT NULL,
			completed_at INTEGER
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	r.logger.Debug().Dur("elapsed", time.Since(start)).Msg("registry: sqlite schema ready")
	return nil
}

func (r *SQLiteRegistry) Register(ctx context.Context, m fabric.AgentManifest) error {
	if m.Status == "" {
		m.Status = fabric.StatusUnknown
	}
	if m.LastSeenAt.IsZero() {
		m.LastSeenAt = time.Now()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	tags, _ := json.Marshal(m.Tags)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO agents (agent_id, display_name, version, description, runtime_kind,
			endpoint_transport, endpoint_uri, tags, trust_tier, status, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			display_name=excluded.display_name, version=excluded.version,
			description=excluded.description, runtime_kind=excluded.runtime_kind,
			endpoint_transport=excluded.endpoint_transport, endpoint_uri=excluded.endpoint_uri,
			tags=excluded.tags, trust_tier=excluded.trust_tier,
			status=excluded.status, last_seen_at=excluded.last_seen_at`,
		m.AgentID, m.DisplayName, m.Version, m.Description, string(m.RuntimeKind),
		string(m.Endpoint.Transport), m.Endpoint.URI, string(tags), string(m.TrustTier),
		string(m.Status), m.LastSeenAt.Unix())
	if err != nil {
		return fmt.Errorf("sqlite: upsert agent: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM capabilities WHERE agent_id = ?`, m.AgentID); err != nil {
		return fmt.Errorf("sqlite: clear capabilities: %w", err)
	}
	for _, c := range m.Capabilities {
		modalities, _ := json.Marshal(c.Modalities)
		inSchema, _ := json.Marshal(c.InputSchema)
		outSchema, _ := json.Marshal(c.OutputSchema)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO capabilities (agent_id, name, description, streaming, modalities,
				input_schema, output_schema, max_timeout_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.AgentID, c.Name, c.Description, boolInt(c.Streaming), string(modalities),
			string(inSchema), string(outSchema), c.MaxTimeoutMs)
		if err != nil {
			return fmt.Errorf("sqlite: insert capability: %w", err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRegistry) Deregister(ctx context.Context, agentID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM agents WHERE agent_id = ?`, agentID)
	if err != nil {
		return fmt.Errorf("sqlite: deregister: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ErrNotFound{AgentID: agentID}
	}
	_, _ = r.db.ExecContext(ctx, `DELETE FROM capabilities WHERE agent_id = ?`, agentID)
	return nil
}

func (r *SQLiteRegistry) Get(ctx context.Context, agentID string) (fabric.AgentManifest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT agent_id, display_name, version, description, runtime_kind,
			endpoint_transport, endpoint_uri, tags, trust_tier, status, last_seen_at
		FROM agents WHERE agent_id = ?`, agentID)
	m, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return fabric.AgentManifest{}, &ErrNotFound{AgentID: agentID}
	}
	if err != nil {
		return fabric.AgentManifest{}, fmt.Errorf("sqlite: get: %w", err)
	}
	m.Capabilities, err = r.loadCapabilities(ctx, agentID)
	if err != nil {
		return fabric.AgentManifest{}, err
	}
	return m, nil
}

func (r *SQLiteRegistry) loadCapabilities(ctx context.Context, agentID string) ([]fabric.CapabilityDescriptor, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, description, streaming, modalities, input_schema, output_schema, max_timeout_ms
		FROM capabilities WHERE agent_id = ?`, agentID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: capabilities: %w", err)
	}
	defer rows.Close()
	var out []fabric.CapabilityDescriptor
	for rows.Next() {
		var c fabric.CapabilityDescriptor
		var modalities, inSchema, outSchema string
		var streaming int
		if err := rows.Scan(&c.Name, &c.Description, &streaming, &modalities, &inSchema, &outSchema, &c.MaxTimeoutMs); err != nil {
			return nil, fmt.Errorf("sqlite: scan capability: %w", err)
		}
		c.Streaming = streaming != 0
		_ = json.Unmarshal([]byte(modalities), &c.Modalities)
		_ = json.Unmarshal([]byte(inSchema), &c.InputSchema)
		_ = json.Unmarshal([]byte(outSchema), &c.OutputSchema)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRegistry) List(ctx context.Context, filter fabric.AgentFilter) ([]fabric.AgentManifest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT agent_id, display_name, version, description, runtime_kind,
			endpoint_transport, endpoint_uri, tags, trust_tier, status, last_seen_at
		FROM agents`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	defer rows.Close()
	var out []fabric.AgentManifest
	for rows.Next() {
		m, err := scanAgentRows(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		caps, err := r.loadCapabilities(ctx, m.AgentID)
		if err != nil {
			return nil, err
		}
		m.Capabilities = caps
		if matchFilter(m, filter) {
			out = append(out, m)
		}
	}
	sortManifests(out)
	return out, rows.Err()
}

func (r *SQLiteRegistry) FindByCapability(ctx context.Context, capability string) ([]RankedAgent, error) {
	manifests, err := r.List(ctx, fabric.AgentFilter{Capability: capability})
	if err != nil {
		return nil, err
	}
	out := make([]RankedAgent, 0, len(manifests))
	for i, m := range manifests {
		out = append(out, RankedAgent{AgentID: m.AgentID, Priority: i})
	}
	return out, nil
}

func (r *SQLiteRegistry) UpdateStatus(ctx context.Context, agentID string, status fabric.AgentStatus, lastSeenAt time.Time) error {
	var currentLastSeen int64
	err := r.db.QueryRowContext(ctx, `SELECT last_seen_at FROM agents WHERE agent_id = ?`, agentID).Scan(&currentLastSeen)
	if err == sql.ErrNoRows {
		return &ErrNotFound{AgentID: agentID}
	}
	if err != nil {
		return fmt.Errorf("sqlite: update status lookup: %w", err)
	}
	if lastSeenAt.Unix() < currentLastSeen {
		return nil // invariant 6: older probe is dropped
	}
	_, err = r.db.ExecContext(ctx, `UPDATE agents SET status = ?, last_seen_at = ? WHERE agent_id = ?`,
		string(status), lastSeenAt.Unix(), agentID)
	if err != nil {
		return fmt.Errorf("sqlite: update status: %w", err)
	}
	_, _ = r.db.ExecContext(ctx, `INSERT INTO health_checks (agent_id, status, latency_ms, checked_at) VALUES (?, ?, 0, ?)`,
		agentID, string(status), lastSeenAt.Unix())
	return nil
}

func (r *SQLiteRegistry) Heartbeat(ctx context.Context, agentID string) error {
	return r.UpdateStatus(ctx, agentID, fabric.StatusOnline, time.Now())
}

// LogCall appends a row to call_logs, grounding the durable variant's audit
// surface (§6 persisted state; §9 Open Questions leaves emission points to
// the implementation).
func (r *SQLiteRegistry) LogCall(ctx context.Context, traceID, targetType, targetID string, request, response []byte, startedAt, completedAt time.Time) error {
	var completed interface{}
	if !completedAt.IsZero() {
		completed = completedAt.Unix()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO call_logs (trace_id, target_type, target_id, request, response, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		traceID, targetType, targetID, string(request), string(response), startedAt.Unix(), completed)
	return err
}

func (r *SQLiteRegistry) Close() error { return r.db.Close() }

// DB exposes the underlying connection for callers that need to run
// ad-hoc queries against the durable tables (tests, operational tooling).
func (r *SQLiteRegistry) DB() *sql.DB { return r.db }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (fabric.AgentManifest, error) {
	return scanAgentRows(row)
}

func scanAgentRows(row rowScanner) (fabric.AgentManifest, error) {
	var m fabric.AgentManifest
	var tags string
	var lastSeen int64
	var transport string
	err := row.Scan(&m.AgentID, &m.DisplayName, &m.Version, &m.Description, &m.RuntimeKind,
		&transport, &m.Endpoint.URI, &tags, &m.TrustTier, &m.Status, &lastSeen)
	if err != nil {
		return m, err
	}
	m.Endpoint.Transport = fabric.TransportKind(transport)
	m.LastSeenAt = time.Unix(lastSeen, 0).UTC()
	_ = json.Unmarshal([]byte(tags), &m.Tags)
	return m, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
