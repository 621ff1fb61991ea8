package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"offline-wallet/internal/core/domain"
)

const remoteSchema = `CREATE TABLE IF NOT EXISTS remote_records (
	collection  TEXT        NOT NULL,
	id          TEXT        NOT NULL,
	fields      JSONB       NOT NULL DEFAULT '{}'::jsonb,
	server_time TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
)`

const remoteIndex = `CREATE INDEX IF NOT EXISTS idx_remote_records_fields
	ON remote_records USING GIN (fields jsonb_path_ops)`

const upsertMergeQuery = `INSERT INTO remote_records (collection, id, fields, server_time)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (collection, id) DO UPDATE
	SET fields = remote_records.fields || EXCLUDED.fields, server_time = now()`

const upsertReplaceQuery = `INSERT INTO remote_records (collection, id, fields, server_time)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (collection, id) DO UPDATE
	SET fields = EXCLUDED.fields, server_time = now()`

// RemoteStore implements ports.RemoteStore on a single JSONB table.
type RemoteStore struct {
	pool Pool
}

// NewRemoteStore creates a new RemoteStore.
func NewRemoteStore(pool Pool) *RemoteStore {
	return &RemoteStore{pool: pool}
}

// EnsureSchema creates the remote_records table and its index.
func (r *RemoteStore) EnsureSchema(ctx context.Context) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, remoteSchema); err != nil {
		return fmt.Errorf("create remote_records: %w", err)
	}
	if _, err := tx.Exec(ctx, remoteIndex); err != nil {
		return fmt.Errorf("create remote_records index: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Upsert writes fields into the record. MergeFields keeps keys not present
// in fields; Replace discards them.
func (r *RemoteStore) Upsert(ctx context.Context, collection, id string, fields map[string]any, policy domain.MergePolicy) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode remote fields: %w", err)
	}

	query := upsertMergeQuery
	if policy == domain.Replace {
		query = upsertReplaceQuery
	}
	if _, err := r.pool.Exec(ctx, query, collection, id, raw); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

// Query returns the records matching any filter field, oldest write first.
func (r *RemoteStore) Query(ctx context.Context, collection string, filter domain.RemoteFilter) ([]domain.RemoteRecord, error) {
	query, args := buildQuery(collection, filter)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var records []domain.RemoteRecord
	for rows.Next() {
		var (
			id         string
			raw        []byte
			serverTime time.Time
		)
		if err := rows.Scan(&id, &raw, &serverTime); err != nil {
			return nil, fmt.Errorf("scan %s record: %w", collection, err)
		}

		fields := make(map[string]any)
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}

		records = append(records, domain.RemoteRecord{
			Collection: collection,
			ID:         id,
			Fields:     fields,
			ServerTime: serverTime,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return records, nil
}

// buildQuery renders the OR filter with keys in sorted order so the
// statement text is stable.
func buildQuery(collection string, filter domain.RemoteFilter) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT id, fields, server_time FROM remote_records WHERE collection = $1")
	args := []any{collection}

	keys := make([]string, 0, len(filter.AnyOf))
	for k := range filter.AnyOf {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(keys) > 0 {
		conds := make([]string, 0, len(keys))
		for _, k := range keys {
			n := len(args)
			conds = append(conds, "fields->>$"+strconv.Itoa(n+1)+" = $"+strconv.Itoa(n+2))
			args = append(args, k, filter.AnyOf[k])
		}
		b.WriteString(" AND (" + strings.Join(conds, " OR ") + ")")
	}

	b.WriteString(" ORDER BY server_time, id")
	return b.String(), args
}
