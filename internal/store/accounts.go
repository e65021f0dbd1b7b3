package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/soulart-temple/backend/internal/models"
)

// ErrEmailTaken is returned when an account already uses the email address.
var ErrEmailTaken = errors.New("store: email already registered")

const uniqueViolation = "23505"

func emptyToNull(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

// CreateAccount inserts a free member holding a password hash.
func (s *Store) CreateAccount(ctx context.Context, acct models.NewAccount) (*models.Member, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: db cannot be nil")
	}
	if acct.Email == "" || acct.PasswordHash == "" {
		return nil, errors.New("store: email and password hash are required")
	}

	email := models.NormalizeEmail(acct.Email)
	m := &models.Member{ID: uuid.NewString(), Email: &email, Tier: models.TierFree}
	err := s.db.QueryRowContext(
		ctx,
		`INSERT INTO members (id, email, tier, password_hash, first_name, last_name)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		m.ID,
		email,
		string(m.Tier),
		acct.PasswordHash,
		emptyToNull(acct.FirstName),
		emptyToNull(acct.LastName),
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("store: create account: %w", err)
	}
	return m, nil
}

// GetCredentials loads the login view of the member with email.
func (s *Store) GetCredentials(ctx context.Context, email string) (models.Credentials, error) {
	if s == nil || s.db == nil {
		return models.Credentials{}, errors.New("store: db cannot be nil")
	}

	var (
		c         models.Credentials
		hash      sql.NullString
		firstName sql.NullString
		lastName  sql.NullString
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT id, email, password_hash, first_name, last_name
		 FROM members WHERE LOWER(email) = LOWER($1) LIMIT 1`,
		models.NormalizeEmail(email),
	).Scan(&c.MemberID, &c.Email, &hash, &firstName, &lastName)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Credentials{}, ErrMemberNotFound
	}
	if err != nil {
		return models.Credentials{}, fmt.Errorf("store: get credentials: %w", err)
	}
	c.PasswordHash = hash.String
	c.FirstName = nullStringPtr(firstName)
	c.LastName = nullStringPtr(lastName)
	return c, nil
}

// GetProfile loads the account view of a member.
func (s *Store) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: db cannot be nil")
	}

	var (
		p         models.Profile
		tier      string
		email     sql.NullString
		firstName sql.NullString
		lastName  sql.NullString
		image     sql.NullString
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT id, email, first_name, last_name, profile_image_url, tier
		 FROM members WHERE id = $1`,
		id,
	).Scan(&p.ID, &email, &firstName, &lastName, &image, &tier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get profile: %w", err)
	}
	p.Tier = models.Tier(tier)
	p.Email = nullStringPtr(email)
	p.FirstName = nullStringPtr(firstName)
	p.LastName = nullStringPtr(lastName)
	p.ProfileImageURL = nullStringPtr(image)
	return &p, nil
}
