package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/prepdesk/core/template"
)

const (
	insertSaveEntry = `
		INSERT INTO save_entry (part_template_id, editor_id, part, outcome, passages, questions, uploads, message, created_at)
		VALUES (:part_template_id, :editor_id, :part, :outcome, :passages, :questions, :uploads, :message, :created_at)
		RETURNING id`

	selectSaveEntries = `
		SELECT id, part_template_id, editor_id, part, outcome, passages, questions, uploads, message, created_at
		FROM save_entry
		WHERE part_template_id = $1
		ORDER BY created_at DESC, id DESC`
)

type saveLogRepository struct {
	db *sqlx.DB
}

var _ template.SaveLogRepository = (*saveLogRepository)(nil) // interface compliance check

func NewSaveLogRepository(db *sqlx.DB) *saveLogRepository {
	return &saveLogRepository{db: db}
}

func (repo *saveLogRepository) AddSaveEntry(ctx context.Context, entry template.SaveEntry) (template.SaveEntry, error) {
	entry.CreatedAt = entry.CreatedAt.UTC()
	rows, err := repo.db.NamedQueryContext(ctx, insertSaveEntry, entry)
	if err != nil {
		return template.SaveEntry{}, errors.Wrap(err, "inserting save entry")
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err = rows.Err(); err == nil {
			err = errors.New("no id returned")
		}
		return template.SaveEntry{}, errors.Wrap(err, "inserting save entry")
	}
	if err = rows.Scan(&entry.ID); err != nil {
		return template.SaveEntry{}, errors.Wrap(err, "scanning save entry id")
	}
	return entry, nil
}

func (repo *saveLogRepository) QuerySaveEntries(ctx context.Context, partTemplateID string) ([]template.SaveEntry, error) {
	entries := make([]template.SaveEntry, 0)
	if err := repo.db.SelectContext(ctx, &entries, selectSaveEntries, partTemplateID); err != nil {
		return nil, errors.Wrap(err, "querying save entries")
	}
	for i := range entries {
		entries[i].CreatedAt = entries[i].CreatedAt.UTC()
	}
	return entries, nil
}
