package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/soulart-temple/backend/internal/models"
)

// ErrEntryNotFound is returned when a journal entry does not exist or belongs
// to another member.
var ErrEntryNotFound = errors.New("store: journal entry not found")

const journalColumns = `id, member_id, affirmation, general_reflection, feelings, emotions_released,
	what_came_up, next_steps, emotion_selected, frequency_tag, vibration_word, prompt_used,
	doodle_image, created_at`

func scanJournalEntry(row rowScanner) (models.JournalEntry, error) {
	var (
		e                                        models.JournalEntry
		reflection, feelings, released, cameUp   sql.NullString
		nextSteps, emotion, frequency, vibration sql.NullString
		prompt, doodle                           sql.NullString
	)
	if err := row.Scan(
		&e.ID,
		&e.MemberID,
		&e.Affirmation,
		&reflection,
		&feelings,
		&released,
		&cameUp,
		&nextSteps,
		&emotion,
		&frequency,
		&vibration,
		&prompt,
		&doodle,
		&e.CreatedAt,
	); err != nil {
		return models.JournalEntry{}, err
	}
	e.GeneralReflection = nullStringPtr(reflection)
	e.Feelings = nullStringPtr(feelings)
	e.EmotionsReleased = nullStringPtr(released)
	e.WhatCameUp = nullStringPtr(cameUp)
	e.NextSteps = nullStringPtr(nextSteps)
	e.EmotionSelected = nullStringPtr(emotion)
	e.FrequencyTag = nullStringPtr(frequency)
	e.VibrationWord = nullStringPtr(vibration)
	e.PromptUsed = nullStringPtr(prompt)
	e.DoodleImage = nullStringPtr(doodle)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

// ListJournalEntries returns a member's entries, newest first.
func (s *Store) ListJournalEntries(ctx context.Context, memberID string) ([]models.JournalEntry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: db cannot be nil")
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+journalColumns+` FROM journal_entries WHERE member_id = $1 ORDER BY created_at DESC, id DESC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list journal entries: %w", err)
	}
	defer rows.Close()

	entries := make([]models.JournalEntry, 0)
	for rows.Next() {
		e, err := scanJournalEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate journal entries: %w", err)
	}
	return entries, nil
}

// CreateJournalEntry inserts e and fills in its id and creation time.
func (s *Store) CreateJournalEntry(ctx context.Context, e *models.JournalEntry) error {
	if s == nil || s.db == nil {
		return errors.New("store: db cannot be nil")
	}
	if e == nil || e.MemberID == "" {
		return errors.New("store: journal entry needs a member")
	}

	err := s.db.QueryRowContext(
		ctx,
		`INSERT INTO journal_entries (member_id, affirmation, general_reflection, feelings, emotions_released,
		   what_came_up, next_steps, emotion_selected, frequency_tag, vibration_word, prompt_used, doodle_image)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at`,
		e.MemberID,
		e.Affirmation,
		stringArg(e.GeneralReflection),
		stringArg(e.Feelings),
		stringArg(e.EmotionsReleased),
		stringArg(e.WhatCameUp),
		stringArg(e.NextSteps),
		stringArg(e.EmotionSelected),
		stringArg(e.FrequencyTag),
		stringArg(e.VibrationWord),
		stringArg(e.PromptUsed),
		stringArg(e.DoodleImage),
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create journal entry: %w", err)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return nil
}

// DeleteJournalEntry removes one of the member's entries.
func (s *Store) DeleteJournalEntry(ctx context.Context, memberID string, id int64) error {
	if s == nil || s.db == nil {
		return errors.New("store: db cannot be nil")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM journal_entries WHERE id = $1 AND member_id = $2`, id, memberID)
	if err != nil {
		return fmt.Errorf("store: delete journal entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete journal entry rows affected: %w", err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}
