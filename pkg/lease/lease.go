// Package lease implements TTL-bounded per-document work leases over a
// jsonb column, so concurrent pipeline processes can split a candidate set
// without a coordinator. A lease is advisory: effects taken under one must
// stay idempotent.
package lease

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/newsdocket/docket/pkg/dates"
)

// DefaultTTL is how long a lease is honored before a crashed holder's lock
// is considered stale.
const DefaultTTL = time.Hour

// leasedTables whitelists tables carrying a leases jsonb column. Table names
// cannot be bound as SQL parameters, so they are validated here instead.
var leasedTables = map[string]bool{
	"articles": true,
}

// Manager acquires and releases named leases on store documents.
type Manager struct {
	db     *stdsql.DB
	logger *slog.Logger
}

// NewManager creates a lease manager over the given connection pool.
func NewManager(db *stdsql.DB, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{db: db, logger: logger.With("component", "lease")}
}

// Acquire attempts to take the named lease on one document. The whole check
// and set is a single UPDATE, so two competing processes cannot both win:
// the lease is written iff the key is absent or its locked_at is older than
// the TTL. Returns false on contention, which is not an error.
func (m *Manager) Acquire(ctx context.Context, table string, docID uuid.UUID, name, owner string, ttl time.Duration) (bool, error) {
	if !leasedTables[table] {
		return false, fmt.Errorf("table %q does not carry leases", table)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := dates.Now()
	cutoff := now.Add(-ttl)

	res, err := m.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET leases = jsonb_set(
			coalesce(leases, '{}'::jsonb),
			ARRAY[$2],
			jsonb_build_object('locked_at', to_jsonb($3::timestamptz), 'owner', $4::text)
		)
		WHERE id = $1
		  AND (
			NOT coalesce(leases, '{}'::jsonb) ? $2
			OR (leases->$2->>'locked_at')::timestamptz < $5
		  )`, table),
		docID, name, now, owner, cutoff)
	if err != nil {
		return false, fmt.Errorf("acquire lease %s/%s: %w", table, name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s/%s: %w", table, name, err)
	}
	return n == 1, nil
}

// Release deletes the named lease. Release failures are logged but never
// propagated: a stuck lease expires on its own, and the caller's work is
// already done.
func (m *Manager) Release(ctx context.Context, table string, docID uuid.UUID, name string) {
	if !leasedTables[table] {
		m.logger.Warn("release on unleased table", "table", table, "lease", name)
		return
	}
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET leases = coalesce(leases, '{}'::jsonb) - $2 WHERE id = $1`, table),
		docID, name)
	if err != nil {
		m.logger.Warn("failed to release lease",
			"table", table, "doc_id", docID, "lease", name, "error", err)
	}
}

// Owner returns this process's lease owner identity: the hostname when
// available, otherwise a pid tag.
func Owner() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fmt.Sprintf("pid-%d", os.Getpid())
}
