package models

import "time"

// JournalEntry is one reflection written by a member.
type JournalEntry struct {
	ID                int64     `json:"id"`
	MemberID          string    `json:"-"`
	Affirmation       string    `json:"affirmation"`
	GeneralReflection *string   `json:"general_reflection"`
	Feelings          *string   `json:"feelings"`
	EmotionsReleased  *string   `json:"emotions_released"`
	WhatCameUp        *string   `json:"what_came_up"`
	NextSteps         *string   `json:"next_steps"`
	EmotionSelected   *string   `json:"emotion_selected"`
	FrequencyTag      *string   `json:"frequency_tag"`
	VibrationWord     *string   `json:"vibration_word"`
	PromptUsed        *string   `json:"prompt_used"`
	DoodleImage       *string   `json:"doodle_image,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// JournalEntryRequest is the body of a new journal entry.
type JournalEntryRequest struct {
	Affirmation       string  `json:"affirmation"`
	GeneralReflection *string `json:"general_reflection"`
	Feelings          *string `json:"feelings"`
	EmotionsReleased  *string `json:"emotions_released"`
	WhatCameUp        *string `json:"what_came_up"`
	NextSteps         *string `json:"next_steps"`
	EmotionSelected   *string `json:"emotion_selected" validate:"omitempty,max=100"`
	FrequencyTag      *string `json:"frequency_tag" validate:"omitempty,max=100"`
	VibrationWord     *string `json:"vibration_word" validate:"omitempty,max=100"`
	PromptUsed        *string `json:"prompt_used"`
}

// DoodleRequest saves a drawing as a journal entry.
type DoodleRequest struct {
	Image string `json:"image"`
	Note  string `json:"note"`
}
