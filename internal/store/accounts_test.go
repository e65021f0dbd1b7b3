package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/soulart-temple/backend/internal/models"
)

func TestCreateAccount(t *testing.T) {
	s, mock := newMockStore(t)

	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO members \(id, email, tier, password_hash, first_name, last_name\)`).
		WithArgs(sqlmock.AnyArg(), "seeker@example.com", "free", "hash", "Ada", nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, created))

	m, err := s.CreateAccount(context.Background(), models.NewAccount{
		Email:        "  Seeker@Example.com ",
		PasswordHash: "hash",
		FirstName:    "Ada",
	})
	if err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	if m.ID == "" || m.Tier != models.TierFree {
		t.Fatalf("unexpected member: %+v", m)
	}
	if m.Email == nil || *m.Email != "seeker@example.com" {
		t.Fatalf("expected normalised email, got %v", m.Email)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateAccountEmailTaken(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO members`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := s.CreateAccount(context.Background(), models.NewAccount{Email: "a@example.com", PasswordHash: "hash"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestCreateAccountRequiresHash(t *testing.T) {
	s, _ := newMockStore(t)
	if _, err := s.CreateAccount(context.Background(), models.NewAccount{Email: "a@example.com"}); err == nil {
		t.Fatal("expected error without a password hash")
	}
}

func TestGetCredentials(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "first_name", "last_name"}).
		AddRow("m-1", "seeker@example.com", "hash", "Ada", nil)
	mock.ExpectQuery(`FROM members WHERE LOWER\(email\) = LOWER\(\$1\)`).
		WithArgs("seeker@example.com").
		WillReturnRows(rows)

	c, err := s.GetCredentials(context.Background(), "Seeker@example.com")
	if err != nil {
		t.Fatalf("GetCredentials returned error: %v", err)
	}
	if c.MemberID != "m-1" || c.PasswordHash != "hash" {
		t.Fatalf("unexpected credentials: %+v", c)
	}
	if c.FirstName == nil || *c.FirstName != "Ada" || c.LastName != nil {
		t.Fatalf("unexpected names: %v %v", c.FirstName, c.LastName)
	}
}

func TestGetCredentialsNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM members WHERE LOWER\(email\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "first_name", "last_name"}))

	if _, err := s.GetCredentials(context.Background(), "nobody@example.com"); !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}
}

func TestGetProfile(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "profile_image_url", "tier"}).
		AddRow("m-1", "seeker@example.com", nil, nil, nil, "basic")
	mock.ExpectQuery(`FROM members WHERE id = \$1`).WithArgs("m-1").WillReturnRows(rows)

	p, err := s.GetProfile(context.Background(), "m-1")
	if err != nil {
		t.Fatalf("GetProfile returned error: %v", err)
	}
	if p.Tier != models.TierBasic || p.DisplayName() != "seeker" {
		t.Fatalf("unexpected profile: %+v (%s)", p, p.DisplayName())
	}
}
