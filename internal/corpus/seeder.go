package corpus

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/shika/internal/models"
	"github.com/hyperjump/shika/internal/retrieval"
	"github.com/hyperjump/shika/internal/storage"
)

// Manager is the part of retrieval.Manager seeding needs.
type Manager interface {
	Find(ctx context.Context, question, source string) (*models.KnowledgeEntry, error)
	BatchAddQA(ctx context.Context, inputs []models.KnowledgeInput) ([]*models.KnowledgeEntry, error)
	BatchUpdateQA(ctx context.Context, updates []retrieval.EntryUpdate) ([]*models.KnowledgeEntry, error)
	ListQA(ctx context.Context, filter models.ListFilter) ([]*models.KnowledgeEntry, error)
}

var _ Manager = (*retrieval.Manager)(nil)

// Result counts what a Seed or Sync did.
type Result struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// Stats describes the active entries of one source.
type Stats struct {
	Source     string         `json:"source"`
	Total      int            `json:"total_entries"`
	Categories map[string]int `json:"categories"`
}

// Seeder loads corpora into the knowledge base, keyed by question and source.
type Seeder struct {
	manager Manager
	logger  *zap.Logger
}

// SeederOption configures a Seeder.
type SeederOption func(*Seeder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) SeederOption {
	return func(s *Seeder) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSeeder creates a Seeder over m.
func NewSeeder(m Manager, opts ...SeederOption) *Seeder {
	s := &Seeder{manager: m, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type entryKey struct {
	question string
	source   string
}

// Seed adds the entries of c that were never stored, in one batch. Entries that exist, including
// deleted ones, are left alone, so seeding twice stores nothing new.
func (s *Seeder) Seed(ctx context.Context, c *Corpus) (Result, error) {
	var res Result
	fresh, _, err := s.partition(ctx, c, &res)
	if err != nil {
		return res, err
	}
	if err := s.add(ctx, fresh, &res); err != nil {
		return res, err
	}
	s.logger.Info("corpus seeded",
		zap.String("source", c.Source),
		zap.Int("added", res.Added),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

// Sync is Seed that also rewrites active entries whose answer or category changed in c. Changed
// entries are updated in one batch.
func (s *Seeder) Sync(ctx context.Context, c *Corpus) (Result, error) {
	var res Result
	fresh, existing, err := s.partition(ctx, c, &res)
	if err != nil {
		return res, err
	}
	var updates []retrieval.EntryUpdate
	for _, pair := range existing {
		in, e := pair.input, pair.entry
		if !e.Active || (e.Answer == in.Answer && e.Category == in.Category) {
			continue
		}
		updates = append(updates, retrieval.EntryUpdate{
			ID:     e.ID,
			Update: models.KnowledgeUpdate{Answer: models.String(in.Answer), Category: models.String(in.Category)},
		})
	}
	if len(updates) > 0 {
		updated, err := s.manager.BatchUpdateQA(ctx, updates)
		res.Updated += len(updated)
		res.Skipped -= len(updated)
		if err != nil {
			return res, fmt.Errorf("update corpus entries: %w", err)
		}
	}
	if err := s.add(ctx, fresh, &res); err != nil {
		return res, err
	}
	s.logger.Info("corpus synced",
		zap.String("source", c.Source),
		zap.Int("added", res.Added),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

type storedPair struct {
	input models.KnowledgeInput
	entry *models.KnowledgeEntry
}

// partition splits c into never-stored inputs and inputs matching a stored entry. Duplicates
// within c count as skipped.
func (s *Seeder) partition(ctx context.Context, c *Corpus, res *Result) ([]models.KnowledgeInput, []storedPair, error) {
	seen := make(map[entryKey]bool, len(c.Entries))
	var fresh []models.KnowledgeInput
	var existing []storedPair
	for _, in := range c.Entries {
		if err := in.Validate(); err != nil {
			return nil, nil, err
		}
		key := entryKey{in.Question, in.Source}
		if seen[key] {
			res.Skipped++
			continue
		}
		seen[key] = true

		e, err := s.manager.Find(ctx, in.Question, in.Source)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			fresh = append(fresh, in)
		case err != nil:
			return nil, nil, fmt.Errorf("look up corpus entry: %w", err)
		default:
			res.Skipped++
			existing = append(existing, storedPair{input: in, entry: e})
		}
	}
	return fresh, existing, nil
}

func (s *Seeder) add(ctx context.Context, inputs []models.KnowledgeInput, res *Result) error {
	if len(inputs) == 0 {
		return nil
	}
	added, err := s.manager.BatchAddQA(ctx, inputs)
	if err != nil {
		return fmt.Errorf("add corpus entries: %w", err)
	}
	res.Added += len(added)
	return nil
}

// Stats counts the active entries of source by category.
func (s *Seeder) Stats(ctx context.Context, source string) (*Stats, error) {
	st := &Stats{Source: source, Categories: map[string]int{}}
	filter := models.ListFilter{Source: source, Limit: 1000}
	for {
		page, err := s.manager.ListQA(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, e := range page {
			st.Total++
			if e.Category != "" {
				st.Categories[e.Category]++
			}
		}
		if len(page) < filter.Limit {
			return st, nil
		}
		filter.Offset += len(page)
	}
}
