package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/soulart-temple/backend/internal/models"
)

const memberColumns = `id, email, tier, subscription_expires_at, billing_customer_id,
	billing_subscription_id, membership_started_at, billing_synced_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*models.Member, error) {
	var (
		m              models.Member
		tier           string
		email          sql.NullString
		expiresAt      sql.NullTime
		customerID     sql.NullString
		subscriptionID sql.NullString
		startedAt      sql.NullTime
		syncedAt       sql.NullTime
	)
	if err := row.Scan(
		&m.ID,
		&email,
		&tier,
		&expiresAt,
		&customerID,
		&subscriptionID,
		&startedAt,
		&syncedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}

	m.Tier = models.Tier(tier)
	m.Email = nullStringPtr(email)
	m.SubscriptionExpiresAt = nullTimePtr(expiresAt)
	m.BillingCustomerID = nullStringPtr(customerID)
	m.BillingSubscriptionID = nullStringPtr(subscriptionID)
	m.MembershipStartedAt = nullTimePtr(startedAt)
	m.BillingSyncedAt = nullTimePtr(syncedAt)
	return &m, nil
}

// GetMember loads a member by id.
func (s *Store) GetMember(ctx context.Context, id string) (*models.Member, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: db cannot be nil")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("store: get member: %w", err)
	}
	return m, nil
}

// GetMemberByEmail loads a member by email, case-insensitively.
func (s *Store) GetMemberByEmail(ctx context.Context, email string) (*models.Member, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: db cannot be nil")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE LOWER(email) = LOWER($1) LIMIT 1`, email)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("store: get member by email: %w", err)
	}
	return m, nil
}

// FindMemberByBillingCustomer loads the member bound to a billing customer.
func (s *Store) FindMemberByBillingCustomer(ctx context.Context, customerRef string) (*models.Member, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: db cannot be nil")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE billing_customer_id = $1`, customerRef)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("store: find member by billing customer: %w", err)
	}
	return m, nil
}

// CreateMember inserts a new member. Members always start on the free tier;
// an empty ID is replaced with a random UUID.
func (s *Store) CreateMember(ctx context.Context, m *models.Member) error {
	if s == nil || s.db == nil {
		return errors.New("store: db cannot be nil")
	}
	if m == nil {
		return errors.New("store: member cannot be nil")
	}

	if strings.TrimSpace(m.ID) == "" {
		m.ID = uuid.NewString()
	}
	m.Tier = models.TierFree

	if err := s.db.QueryRowContext(
		ctx,
		`INSERT INTO members (id, email, tier)
		 VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		m.ID,
		stringArg(m.Email),
		string(m.Tier),
	).Scan(&m.CreatedAt, &m.UpdatedAt); err != nil {
		return fmt.Errorf("store: create member: %w", err)
	}
	return nil
}

// SaveMember writes every mutable column of m.
func (s *Store) SaveMember(ctx context.Context, m *models.Member) error {
	if s == nil || s.db == nil {
		return errors.New("store: db cannot be nil")
	}
	if err := saveMember(ctx, s.db, m); err != nil {
		return err
	}
	return nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func saveMember(ctx context.Context, q rowQuerier, m *models.Member) error {
	if !m.Tier.Valid() {
		return fmt.Errorf("store: invalid tier %q", m.Tier)
	}

	err := q.QueryRowContext(
		ctx,
		`UPDATE members
		 SET email = $2,
		     tier = $3,
		     subscription_expires_at = $4,
		     billing_customer_id = $5,
		     billing_subscription_id = $6,
		     membership_started_at = $7,
		     billing_synced_at = $8,
		     updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		m.ID,
		stringArg(m.Email),
		string(m.Tier),
		timeArg(m.SubscriptionExpiresAt),
		stringArg(m.BillingCustomerID),
		stringArg(m.BillingSubscriptionID),
		timeArg(m.MembershipStartedAt),
		timeArg(m.BillingSyncedAt),
	).Scan(&m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrMemberNotFound
	}
	if err != nil {
		return fmt.Errorf("store: save member: %w", err)
	}
	return nil
}

// UpdateMember locks the member row, applies mutate and writes the result in
// a single transaction. Any error from mutate rolls the transaction back;
// ErrNoChange does so silently.
func (s *Store) UpdateMember(ctx context.Context, id string, mutate func(*models.Member) error) (*models.Member, error) {
	return s.updateMemberWhere(ctx, "id", id, mutate)
}

// UpdateMemberByBillingCustomer is UpdateMember keyed by the billing
// customer reference.
func (s *Store) UpdateMemberByBillingCustomer(ctx context.Context, customerRef string, mutate func(*models.Member) error) (*models.Member, error) {
	return s.updateMemberWhere(ctx, "billing_customer_id", customerRef, mutate)
}

func (s *Store) updateMemberWhere(ctx context.Context, column, value string, mutate func(*models.Member) error) (*models.Member, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: db cannot be nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin update member tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE `+column+` = $1 FOR UPDATE`, value)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("store: lock member: %w", err)
	}

	if err := mutate(m); err != nil {
		if errors.Is(err, ErrNoChange) {
			return m, nil
		}
		return nil, err
	}

	if err := saveMember(ctx, tx, m); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit update member tx: %w", err)
	}
	return m, nil
}

// SetBillingCustomer binds a billing customer reference to a member.
func (s *Store) SetBillingCustomer(ctx context.Context, id, customerRef string) error {
	if s == nil || s.db == nil {
		return errors.New("store: db cannot be nil")
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE members SET billing_customer_id = $2, updated_at = now() WHERE id = $1`,
		id,
		customerRef,
	)
	if err != nil {
		return fmt.Errorf("store: set billing customer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: set billing customer: %w", err)
	}
	if n == 0 {
		return ErrMemberNotFound
	}
	return nil
}
