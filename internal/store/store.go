package store

import (
	"database/sql"
	"errors"
	"time"
)

var (
	// ErrMemberNotFound is returned when no member matches a lookup.
	ErrMemberNotFound = errors.New("store: member not found")
	// ErrNoChange may be returned by an update callback to abandon the
	// transaction without writing. The caller receives the unchanged member
	// and a nil error.
	ErrNoChange = errors.New("store: no change")
)

// Store provides database-backed accessors for application data.
type Store struct {
	db *sql.DB
}

// New creates a Store using the provided sql.DB connection.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &Store{db: db}, nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	if s == nil || s.db == nil {
		return errors.New("store: db cannot be nil")
	}
	return s.db.Ping()
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

func stringArg(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func timeArg(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}
