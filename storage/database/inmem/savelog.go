package inmemdb

import (
	"context"
	"sort"
	"sync"

	"github.com/trezcool/prepdesk/core/template"
)

type saveLogRepository struct {
	mu      sync.RWMutex
	pkCount int64
	table   []template.SaveEntry
}

var _ template.SaveLogRepository = (*saveLogRepository)(nil) // interface compliance check

func NewSaveLogRepository() *saveLogRepository {
	return &saveLogRepository{}
}

func (repo *saveLogRepository) AddSaveEntry(_ context.Context, entry template.SaveEntry) (template.SaveEntry, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	repo.pkCount++
	entry.ID = repo.pkCount
	entry.CreatedAt = entry.CreatedAt.UTC()
	repo.table = append(repo.table, entry)
	return entry, nil
}

func (repo *saveLogRepository) QuerySaveEntries(_ context.Context, partTemplateID string) ([]template.SaveEntry, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	entries := make([]template.SaveEntry, 0)
	for _, entry := range repo.table {
		if entry.PartTemplateID == partTemplateID {
			entries = append(entries, entry)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}
