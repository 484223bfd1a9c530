// Package inmemcache keeps editor drafts in memory, for tests and single-process setups.
package inmemcache

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/prepdesk/core/template"
)

type entry struct {
	draft     template.Draft
	expiresAt time.Time
}

type draftRepository struct {
	mu    sync.Mutex
	ttl   time.Duration
	table map[string]entry
	now   func() time.Time
}

var _ template.DraftRepository = (*draftRepository)(nil) // interface compliance check

// NewDraftRepository keeps drafts for ttl (forever when ttl is 0).
func NewDraftRepository(ttl time.Duration) *draftRepository {
	return &draftRepository{ttl: ttl, table: make(map[string]entry), now: time.Now}
}

func (repo *draftRepository) PutDraft(_ context.Context, d template.Draft) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	e := entry{draft: d}
	e.draft.Content = append([]byte(nil), d.Content...)
	if repo.ttl > 0 {
		e.expiresAt = repo.now().Add(repo.ttl)
	}
	repo.table[d.PartTemplateID] = e
	return nil
}

// get returns the live entry of partTemplateID, dropping it when expired. The caller holds the lock.
func (repo *draftRepository) get(partTemplateID string) (entry, bool) {
	e, ok := repo.table[partTemplateID]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !repo.now().Before(e.expiresAt) {
		delete(repo.table, partTemplateID)
		return entry{}, false
	}
	return e, true
}

func (repo *draftRepository) GetDraft(_ context.Context, partTemplateID string) (template.Draft, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	e, ok := repo.get(partTemplateID)
	if !ok {
		return template.Draft{}, template.ErrDraftNotFound
	}
	d := e.draft
	d.Content = append([]byte(nil), e.draft.Content...)
	return d, nil
}

func (repo *draftRepository) DeleteDraft(_ context.Context, partTemplateID string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if _, ok := repo.get(partTemplateID); !ok {
		return template.ErrDraftNotFound
	}
	delete(repo.table, partTemplateID)
	return nil
}
