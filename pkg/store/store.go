// Package store implements typed PostgreSQL repositories for the pipeline
// entities. Every jsonb payload is passed through dates.Normalize before it
// is written, so persisted date strings always carry the fixed -05:00 offset.
package store

import (
	stdsql "database/sql"
)

// Store bundles the typed repositories over one connection pool.
type Store struct {
	db *stdsql.DB

	Articles      *ArticleRepository
	Claims        *ClaimRepository
	Updates       *UpdateRepository
	FollowUps     *FollowUpRepository
	Roundups      *RoundupRepository
	LMLogs        *LMLogRepository
	Subscriptions *LocaleSubscriptionRepository
}

// New creates a Store over an existing database connection.
func New(db *stdsql.DB) *Store {
	return &Store{
		db:            db,
		Articles:      &ArticleRepository{db: db},
		Claims:        &ClaimRepository{db: db},
		Updates:       &UpdateRepository{db: db},
		FollowUps:     &FollowUpRepository{db: db},
		Roundups:      &RoundupRepository{db: db},
		LMLogs:        &LMLogRepository{db: db},
		Subscriptions: &LocaleSubscriptionRepository{db: db},
	}
}

// DB exposes the underlying pool for health checks and the lease manager.
func (s *Store) DB() *stdsql.DB {
	return s.db
}
