// Package models defines core data structures for knowledge entries, queries, and search results.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SourceUserDefined is the provenance tag for entries added by clinic staff.
const SourceUserDefined = "user_defined"

// ErrInvalidInput is returned when an input or query fails validation.
var ErrInvalidInput = errors.New("invalid input")

// KnowledgeEntry is one question/answer record with metadata and its embedding.
type KnowledgeEntry struct {
	ID             string    `json:"id" db:"id"`
	Question       string    `json:"question" db:"question"`
	Answer         string    `json:"answer" db:"answer"`
	Category       string    `json:"category,omitempty" db:"category"`
	Source         string    `json:"source" db:"source"`
	SourceURL      string    `json:"source_url,omitempty" db:"source_url"`
	Embedding      []float32 `json:"-" db:"embedding"`
	EmbeddingModel string    `json:"embedding_model" db:"embedding_model"`
	Active         bool      `json:"active" db:"active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// KnowledgeInput is the input for creating an entry.
type KnowledgeInput struct {
	Question  string `json:"question" yaml:"question"`
	Answer    string `json:"answer" yaml:"answer"`
	Category  string `json:"category,omitempty" yaml:"category,omitempty"`
	Source    string `json:"source,omitempty" yaml:"source,omitempty"`
	SourceURL string `json:"source_url,omitempty" yaml:"source_url,omitempty"`
}

// Validate trims the text fields, rejects empty question or answer and defaults the source.
func (in *KnowledgeInput) Validate() error {
	in.Question = strings.TrimSpace(in.Question)
	in.Answer = strings.TrimSpace(in.Answer)
	in.Category = strings.TrimSpace(in.Category)
	in.Source = strings.TrimSpace(in.Source)
	if in.Question == "" {
		return fmt.Errorf("%w: question cannot be empty", ErrInvalidInput)
	}
	if in.Answer == "" {
		return fmt.Errorf("%w: answer cannot be empty", ErrInvalidInput)
	}
	if in.Source == "" {
		in.Source = SourceUserDefined
	}
	return nil
}

// KnowledgeUpdate carries the editable fields of an entry. Nil fields are left unchanged.
type KnowledgeUpdate struct {
	Question *string `json:"question,omitempty"`
	Answer   *string `json:"answer,omitempty"`
	Category *string `json:"category,omitempty"`
}

// Validate rejects updates that would blank the question or answer.
func (u *KnowledgeUpdate) Validate() error {
	if u.Question != nil && strings.TrimSpace(*u.Question) == "" {
		return fmt.Errorf("%w: question cannot be empty", ErrInvalidInput)
	}
	if u.Answer != nil && strings.TrimSpace(*u.Answer) == "" {
		return fmt.Errorf("%w: answer cannot be empty", ErrInvalidInput)
	}
	return nil
}

// Apply writes the non-nil fields into e and reports whether question or answer text changed.
func (u *KnowledgeUpdate) Apply(e *KnowledgeEntry) (textChanged bool) {
	if u.Question != nil {
		q := strings.TrimSpace(*u.Question)
		if q != e.Question {
			e.Question = q
			textChanged = true
		}
	}
	if u.Answer != nil {
		a := strings.TrimSpace(*u.Answer)
		if a != e.Answer {
			e.Answer = a
			textChanged = true
		}
	}
	if u.Category != nil {
		e.Category = strings.TrimSpace(*u.Category)
	}
	return textChanged
}

// ListFilter narrows list operations. Empty fields match everything.
type ListFilter struct {
	Category string `json:"category,omitempty"`
	Source   string `json:"source,omitempty"`
	Offset   int    `json:"offset,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Normalize clamps pagination to sane bounds.
func (f *ListFilter) Normalize() {
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Limit > 1000 {
		f.Limit = 1000
	}
}
