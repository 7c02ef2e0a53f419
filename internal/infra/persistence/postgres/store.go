// Package postgres provides a Postgres-backed NodeStore that mirrors the
// sqlite driver's row schema and semantics for shared deployments.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"codexcore/internal/query"
	"codexcore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.NodeStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/codexcore?sslmode=disable"
)

// DefaultTimeout bounds every statement, matching the sqlite driver.
const DefaultTimeout = 5 * time.Second

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS nodes (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		type_tag TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '{}',
		parent_id TEXT,
		children_ids TEXT NOT NULL DEFAULT '[]',
		water_state TEXT NOT NULL DEFAULT 'liquid',
		energy_level DOUBLE PRECISION NOT NULL DEFAULT 0,
		fractal_layer INTEGER NOT NULL DEFAULT 2,
		epistemic_label TEXT NOT NULL DEFAULT 'engineering',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		is_deleted INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(type_tag)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_deleted ON nodes(is_deleted)`,
	`CREATE TABLE IF NOT EXISTS relationships (
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		relationship_type TEXT NOT NULL,
		strength DOUBLE PRECISION NOT NULL DEFAULT 0,
		rationale TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		PRIMARY KEY (source_id, target_id, relationship_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id)`,
}

const nodeColumns = `id, type_tag, name, payload, parent_id, children_ids, water_state, energy_level, fractal_layer, epistemic_label, created_at, updated_at, is_deleted`

// Store is a Postgres-backed NodeStore.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTimeout overrides the per-statement timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewStore connects to Postgres using dsn (falling back to a local default)
// and applies the schema.
func NewStore(dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open(defaultDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := &Store{db: db, timeout: DefaultTimeout}
	for _, o := range opts {
		o(s)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, domain.Wrap(domain.KindStoreUnavailable, err, "ping postgres")
	}
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

func ok(op domain.OperationType, start time.Time, data any, rows int64) domain.OperationResult {
	return domain.OperationResult{
		Op:            op,
		Success:       true,
		Data:          data,
		ExecutionTime: time.Since(start),
		Timestamp:     time.Now().UTC(),
		RowsAffected:  rows,
	}
}

func fail(op domain.OperationType, start time.Time, err error) domain.OperationResult {
	return domain.OperationResult{
		Op:            op,
		ExecutionTime: time.Since(start),
		Timestamp:     time.Now().UTC(),
		Err:           classify(err),
	}
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Wrap(domain.KindTimeout, err, "statement exceeded timeout")
	}
	return domain.Wrap(domain.KindStoreUnavailable, err, "postgres store")
}

// CreateNode inserts a new node, failing with a duplicate-key error when the
// id is already present. Parent linkage mirrors the sqlite driver.
func (s *Store) CreateNode(ctx context.Context, node domain.Node) domain.OperationResult {
	start := time.Now()
	if node.ID == "" {
		return fail(domain.OpCreateNode, start, domain.Validationf("node id must not be empty"))
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(domain.OpCreateNode, start, err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id = $1`, node.ID).Scan(&exists)
	switch {
	case err == nil:
		return fail(domain.OpCreateNode, start, domain.Errf(domain.KindDuplicateKey, "node %s already exists", node.ID))
	case !errors.Is(err, sql.ErrNoRows):
		return fail(domain.OpCreateNode, start, err)
	}

	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}
	node.Touch()
	if err := writeNode(ctx, tx, node); err != nil {
		return fail(domain.OpCreateNode, start, err)
	}
	if err := linkParent(ctx, tx, node); err != nil {
		return fail(domain.OpCreateNode, start, err)
	}
	if err := tx.Commit(); err != nil {
		return fail(domain.OpCreateNode, start, err)
	}
	return ok(domain.OpCreateNode, start, node, 1)
}

// ReadNode fetches a node by id; soft-deleted nodes report not-found.
func (s *Store) ReadNode(ctx context.Context, id string) domain.OperationResult {
	start := time.Now()
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = $1 AND is_deleted = 0`, id)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fail(domain.OpReadNode, start, domain.Errf(domain.KindNotFound, "node %s not found", id))
	}
	if err != nil {
		return fail(domain.OpReadNode, start, err)
	}
	return ok(domain.OpReadNode, start, node, 1)
}

// UpdateNode replaces the full row with upsert semantics.
func (s *Store) UpdateNode(ctx context.Context, node domain.Node) domain.OperationResult {
	start := time.Now()
	if node.ID == "" {
		return fail(domain.OpUpdateNode, start, domain.Validationf("node id must not be empty"))
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(domain.OpUpdateNode, start, err)
	}
	defer func() { _ = tx.Rollback() }()

	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}
	node.Touch()
	if err := writeNode(ctx, tx, node); err != nil {
		return fail(domain.OpUpdateNode, start, err)
	}
	if err := linkParent(ctx, tx, node); err != nil {
		return fail(domain.OpUpdateNode, start, err)
	}
	if err := tx.Commit(); err != nil {
		return fail(domain.OpUpdateNode, start, err)
	}
	return ok(domain.OpUpdateNode, start, node, 1)
}

// DeleteNode flips the soft-delete flag; absent ids succeed with zero rows.
func (s *Store) DeleteNode(ctx context.Context, id string) domain.OperationResult {
	start := time.Now()
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx,
		`UPDATE nodes SET is_deleted = 1, updated_at = $1 WHERE id = $2 AND is_deleted = 0`,
		time.Now().UTC().Format(query.TimeLayout), id)
	if err != nil {
		return fail(domain.OpDeleteNode, start, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fail(domain.OpDeleteNode, start, err)
	}
	return ok(domain.OpDeleteNode, start, nil, rows)
}

// QueryNodes mirrors the sqlite driver's hybrid strategy with numbered
// placeholders.
func (s *Store) QueryNodes(ctx context.Context, filters []domain.Filter, options domain.QueryOptions) domain.OperationResult {
	start := time.Now()
	if err := query.Validate(filters); err != nil {
		return fail(domain.OpQueryNodes, start, err)
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if query.CanCompile(filters, options) {
		nodes, err := s.queryCompiled(ctx, filters, options)
		if err != nil {
			return fail(domain.OpQueryNodes, start, err)
		}
		return ok(domain.OpQueryNodes, start, nodes, int64(len(nodes)))
	}

	candidates, err := s.fetchCandidates(ctx, filtersReferenceDeleted(filters))
	if err != nil {
		return fail(domain.OpQueryNodes, start, err)
	}
	nodes, err := query.Evaluate(candidates, filters, options)
	if err != nil {
		return fail(domain.OpQueryNodes, start, err)
	}
	return ok(domain.OpQueryNodes, start, nodes, int64(len(nodes)))
}

func (s *Store) queryCompiled(ctx context.Context, filters []domain.Filter, options domain.QueryOptions) ([]domain.Node, error) {
	c, err := query.Compile(filters, options)
	if err != nil {
		return nil, err
	}
	stmt := `SELECT ` + nodeColumns + ` FROM nodes`
	switch {
	case c.Predicate != "" && !filtersReferenceDeleted(filters):
		stmt += ` WHERE (` + c.Predicate + `) AND is_deleted = 0`
	case c.Predicate != "":
		stmt += ` WHERE ` + c.Predicate
	default:
		stmt += ` WHERE is_deleted = 0`
	}
	if c.Order != "" {
		stmt += ` ` + c.Order
	} else {
		stmt += ` ORDER BY seq`
	}
	if c.Limit != "" {
		// sqlite spells an unbounded limit as -1
		stmt += ` ` + strings.Replace(c.Limit, "LIMIT -1", "LIMIT ALL", 1)
	}
	return s.selectNodes(ctx, query.Rebind(stmt), c.Args...)
}

func (s *Store) fetchCandidates(ctx context.Context, includeDeleted bool) ([]domain.Node, error) {
	stmt := `SELECT ` + nodeColumns + ` FROM nodes`
	if !includeDeleted {
		stmt += ` WHERE is_deleted = 0`
	}
	stmt += ` ORDER BY seq`
	return s.selectNodes(ctx, stmt)
}

func (s *Store) selectNodes(ctx context.Context, stmt string, args ...any) ([]domain.Node, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	nodes := []domain.Node{}
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// PutRelationship upserts by composite key.
func (s *Store) PutRelationship(ctx context.Context, rec domain.RelationshipRecord) domain.OperationResult {
	start := time.Now()
	if err := rec.Validate(); err != nil {
		return fail(domain.OpPutRelationship, start, err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `INSERT INTO relationships
		(source_id, target_id, relationship_type, strength, rationale, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_id, target_id, relationship_type)
		DO UPDATE SET strength = excluded.strength, rationale = excluded.rationale, created_at = excluded.created_at`,
		rec.SourceID, rec.TargetID, rec.Type, rec.Strength, rec.Rationale,
		rec.CreatedAt.UTC().Format(query.TimeLayout))
	if err != nil {
		return fail(domain.OpPutRelationship, start, err)
	}
	return ok(domain.OpPutRelationship, start, rec, 1)
}

// DeleteRelationship removes by composite key; absent keys succeed with zero
// rows affected.
func (s *Store) DeleteRelationship(ctx context.Context, sourceID, targetID, relType string) domain.OperationResult {
	start := time.Now()
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM relationships WHERE source_id = $1 AND target_id = $2 AND relationship_type = $3`,
		sourceID, targetID, relType)
	if err != nil {
		return fail(domain.OpDeleteRelationship, start, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fail(domain.OpDeleteRelationship, start, err)
	}
	return ok(domain.OpDeleteRelationship, start, nil, rows)
}

// ListRelationships returns every record touching nodeID as source or target.
func (s *Store) ListRelationships(ctx context.Context, nodeID string) domain.OperationResult {
	start := time.Now()
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT source_id, target_id, relationship_type, strength, rationale, created_at
		FROM relationships WHERE source_id = $1 OR target_id = $2 ORDER BY source_id, target_id, relationship_type`,
		nodeID, nodeID)
	if err != nil {
		return fail(domain.OpListRelationships, start, err)
	}
	defer func() { _ = rows.Close() }()
	recs := []domain.RelationshipRecord{}
	for rows.Next() {
		var rec domain.RelationshipRecord
		var created string
		if err := rows.Scan(&rec.SourceID, &rec.TargetID, &rec.Type, &rec.Strength, &rec.Rationale, &created); err != nil {
			return fail(domain.OpListRelationships, start, err)
		}
		rec.CreatedAt = parseStoredTime(created)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return fail(domain.OpListRelationships, start, err)
	}
	return ok(domain.OpListRelationships, start, recs, int64(len(recs)))
}

func writeNode(ctx context.Context, tx *sql.Tx, node domain.Node) error {
	payloadJSON, err := json.Marshal(node.Payload)
	if err != nil {
		return domain.Validationf("node %s: encode payload: %v", node.ID, err)
	}
	childrenJSON, err := json.Marshal(node.ChildrenIDs)
	if err != nil {
		return err
	}
	var parent any
	if node.ParentID != nil {
		parent = *node.ParentID
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO nodes
		(id, type_tag, name, payload, parent_id, children_ids, water_state, energy_level, fractal_layer, epistemic_label, created_at, updated_at, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			type_tag = excluded.type_tag,
			name = excluded.name,
			payload = excluded.payload,
			parent_id = excluded.parent_id,
			children_ids = excluded.children_ids,
			water_state = excluded.water_state,
			energy_level = excluded.energy_level,
			fractal_layer = excluded.fractal_layer,
			epistemic_label = excluded.epistemic_label,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			is_deleted = excluded.is_deleted`,
		node.ID, string(node.TypeTag), node.Name, string(payloadJSON), parent, string(childrenJSON),
		string(node.WaterState), node.EnergyLevel, int(node.FractalLayer), string(node.EpistemicLabel),
		node.CreatedAt.UTC().Format(query.TimeLayout), node.UpdatedAt.UTC().Format(query.TimeLayout),
		boolToInt(node.Deleted))
	return err
}

func linkParent(ctx context.Context, tx *sql.Tx, node domain.Node) error {
	if node.ParentID == nil || *node.ParentID == "" {
		return nil
	}
	var childrenJSON string
	err := tx.QueryRowContext(ctx, `SELECT children_ids FROM nodes WHERE id = $1`, *node.ParentID).Scan(&childrenJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	var children []string
	if err := json.Unmarshal([]byte(childrenJSON), &children); err != nil {
		return fmt.Errorf("decode children of %s: %w", *node.ParentID, err)
	}
	for _, id := range children {
		if id == node.ID {
			return nil
		}
	}
	children = append(children, node.ID)
	updated, err := json.Marshal(children)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE nodes SET children_ids = $1, updated_at = $2 WHERE id = $3`,
		string(updated), time.Now().UTC().Format(query.TimeLayout), *node.ParentID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (domain.Node, error) {
	var (
		node         domain.Node
		tag          string
		payloadJSON  string
		parent       sql.NullString
		childrenJSON string
		water        string
		layer        int
		epistemic    string
		created      string
		updated      string
		deleted      int
	)
	if err := row.Scan(&node.ID, &tag, &node.Name, &payloadJSON, &parent, &childrenJSON,
		&water, &node.EnergyLevel, &layer, &epistemic, &created, &updated, &deleted); err != nil {
		return domain.Node{}, err
	}
	node.TypeTag = domain.TypeTag(tag)
	if err := json.Unmarshal([]byte(payloadJSON), &node.Payload); err != nil {
		return domain.Node{}, fmt.Errorf("decode payload of %s: %w", node.ID, err)
	}
	if err := json.Unmarshal([]byte(childrenJSON), &node.ChildrenIDs); err != nil {
		return domain.Node{}, fmt.Errorf("decode children of %s: %w", node.ID, err)
	}
	if parent.Valid && parent.String != "" {
		p := parent.String
		node.ParentID = &p
	}
	node.WaterState, _ = domain.ParseWaterState(water)
	node.FractalLayer, _ = domain.ParseFractalLayer(layer)
	node.EpistemicLabel, _ = domain.ParseEpistemicLabel(epistemic)
	node.CreatedAt = parseStoredTime(created)
	node.UpdatedAt = parseStoredTime(updated)
	node.Deleted = deleted != 0
	return node, nil
}

func filtersReferenceDeleted(filters []domain.Filter) bool {
	for _, f := range filters {
		if f.Field == "is_deleted" {
			return true
		}
	}
	return false
}

func parseStoredTime(s string) time.Time {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
