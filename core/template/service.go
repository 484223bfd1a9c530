package template

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/prepdesk/core"
)

var ErrDraftNotFound = errors.Wrap(ErrNotFound, "draft")

type SaveOutcome string

const (
	OutcomeSuccess SaveOutcome = "success"
	OutcomeInvalid SaveOutcome = "invalid"
	OutcomeFailure SaveOutcome = "failure"
)

type (
	// Importer submits the assembled content of a part template.
	Importer interface {
		EnqueueImport(ctx context.Context, partTemplateID string, req ImportRequest) error
	}

	// TemplateMeta is sent along the content; empty fields take the service defaults.
	TemplateMeta struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Status      string `json:"status"`
	}

	// SaveEntry records one finished save cycle.
	SaveEntry struct {
		ID             int64       `json:"id" db:"id"`
		PartTemplateID string      `json:"part_template_id" db:"part_template_id"`
		EditorID       string      `json:"editor_id" db:"editor_id"`
		Part           PartKind    `json:"part" db:"part"`
		Outcome        SaveOutcome `json:"outcome" db:"outcome"`
		Passages       int         `json:"passages" db:"passages"`
		Questions      int         `json:"questions" db:"questions"`
		Uploads        int         `json:"uploads" db:"uploads"`
		Message        string      `json:"message" db:"message"`
		CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	}

	SaveLogRepository interface {
		AddSaveEntry(ctx context.Context, entry SaveEntry) (SaveEntry, error)
		// QuerySaveEntries returns the entries of a part template, most recent first.
		QuerySaveEntries(ctx context.Context, partTemplateID string) ([]SaveEntry, error)
	}

	// Draft is an unsaved snapshot of an editor, in the grouped shape.
	Draft struct {
		PartTemplateID string          `json:"part_template_id"`
		Part           PartKind        `json:"part"`
		Content        json.RawMessage `json:"content"`
		SavedAt        time.Time       `json:"saved_at"`
	}

	DraftRepository interface {
		PutDraft(ctx context.Context, d Draft) error
		// GetDraft returns ErrDraftNotFound when no draft is stored for the part template.
		GetDraft(ctx context.Context, partTemplateID string) (Draft, error)
		DeleteDraft(ctx context.Context, partTemplateID string) error
	}

	ServiceDeps struct {
		Uploader Uploader
		Importer Importer
		Gate     *Gate
		Saves    SaveLogRepository
		Drafts   DraftRepository
		Notifier core.Notifier
		Logger   core.Logger
		// Status is the template status sent when TemplateMeta.Status is empty.
		Status string
	}

	Service struct {
		uploader Uploader
		importer Importer
		gate     *Gate
		saves    SaveLogRepository
		drafts   DraftRepository
		notifier core.Notifier
		log      core.Logger
		status   string
	}
)

func NewService(deps ServiceDeps) (*Service, error) {
	switch {
	case deps.Uploader == nil:
		return nil, errors.New("template service: uploader is required")
	case deps.Importer == nil:
		return nil, errors.New("template service: importer is required")
	case deps.Gate == nil:
		return nil, errors.New("template service: gate is required")
	case deps.Saves == nil:
		return nil, errors.New("template service: save log is required")
	case deps.Drafts == nil:
		return nil, errors.New("template service: drafts are required")
	case deps.Notifier == nil:
		return nil, errors.New("template service: notifier is required")
	case deps.Logger == nil:
		return nil, errors.New("template service: logger is required")
	}

	status := deps.Status
	if status == "" {
		status = "DRAFT"
	}
	return &Service{
		uploader: deps.Uploader,
		importer: deps.Importer,
		gate:     deps.Gate,
		saves:    deps.Saves,
		drafts:   deps.Drafts,
		notifier: deps.Notifier,
		log:      deps.Logger,
		status:   status,
	}, nil
}

// Validate runs the validation gate on the current state of the editor.
func (svc *Service) Validate(e *Editor) error {
	return svc.gate.Check(e.Kind, e.Passages())
}

// Payload assembles the request Save would submit. Staged media makes it fail with ErrUnresolvedMedia.
func (svc *Service) Payload(e *Editor, meta TemplateMeta) (ImportRequest, error) {
	content, err := Assemble(e.Kind, e.Passages())
	if err != nil {
		return ImportRequest{}, err
	}
	return svc.request(e, meta, content), nil
}

// Save runs one save cycle: validation, upload of the staged files, assembly and submission.
//
// Only one cycle runs at a time per editor: Save returns ErrSaveInProgress while another is in flight. Every
// network call is bound to the editor's Context; when the editor is closed mid-cycle the outcome is dropped and
// ErrEditorClosed is returned.
// Any other outcome is reported once through the notifier and appended to the save log, and the error is returned
// as is.
func (svc *Service) Save(e *Editor, meta TemplateMeta) error {
	if err := e.beginSave(); err != nil {
		return err
	}
	defer e.endSave()

	ctx := e.Context()
	stats, err := svc.save(ctx, e, meta)
	if e.Closed() {
		svc.log.Info("editor closed during save, outcome dropped", e.LogFields())
		return ErrEditorClosed
	}

	outcome := OutcomeSuccess
	switch {
	case errors.Is(err, ErrValidationFailure):
		outcome = OutcomeInvalid
	case err != nil:
		outcome = OutcomeFailure
		e.setState(StateFailure)
	default:
		e.setState(StateSuccess)
	}

	n := Notification(err, stats.passages, stats.questions)
	svc.notifier.Notify(ctx, n)

	entry := SaveEntry{
		PartTemplateID: e.PartTemplateID,
		EditorID:       e.ID,
		Part:           e.Kind,
		Outcome:        outcome,
		Passages:       stats.passages,
		Questions:      stats.questions,
		Uploads:        stats.uploads,
		Message:        n.Message,
		CreatedAt:      time.Now().UTC(),
	}
	if _, lErr := svc.saves.AddSaveEntry(ctx, entry); lErr != nil {
		svc.log.Error("recording save", lErr, e.LogFields())
	}

	if outcome == OutcomeSuccess {
		if dErr := svc.drafts.DeleteDraft(ctx, e.PartTemplateID); dErr != nil && !errors.Is(dErr, ErrDraftNotFound) {
			svc.log.Warn("deleting draft", dErr, e.LogFields())
		}
	}
	return err
}

type saveStats struct {
	passages  int
	questions int
	uploads   int
}

func (svc *Service) save(ctx context.Context, e *Editor, meta TemplateMeta) (saveStats, error) {
	var stats saveStats

	e.setState(StateValidating)
	passages := e.Passages()
	stats.passages, stats.questions = len(passages), countQuestions(passages)
	if err := svc.gate.Check(e.Kind, passages); err != nil {
		e.setState(StateInvalid)
		return stats, err
	}

	e.setState(StateUploading)
	uploads, err := svc.uploadStaged(ctx, e, passages)
	stats.uploads = uploads
	if err != nil {
		return stats, err
	}

	// the tree may have been edited while files were uploading
	e.setState(StateAssembling)
	passages = e.Passages()
	stats.passages, stats.questions = len(passages), countQuestions(passages)
	if err := svc.gate.Check(e.Kind, passages); err != nil {
		e.setState(StateInvalid)
		return stats, err
	}
	content, err := Assemble(e.Kind, passages)
	if err != nil {
		return stats, err
	}
	stats.passages, stats.questions = len(content.Passages), len(content.Questions)

	e.setState(StateSubmitting)
	if err := svc.importer.EnqueueImport(ctx, e.PartTemplateID, svc.request(e, meta, content)); err != nil {
		return stats, err
	}
	return stats, nil
}

// uploadStaged uploads the staged file of every media passage concurrently and waits for all of them.
// Each resolved upload is recorded on the editor right away, so a later retry skips it.
func (svc *Service) uploadStaged(ctx context.Context, e *Editor, passages []*Passage) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	var n int
	for _, p := range passages {
		if !p.Type.IsMedia() || !p.Media.IsStaged() {
			continue
		}
		n++
		id, ct, pv := p.ID, p.Type, p.Media.Preview
		g.Go(func() error {
			publicID, err := svc.uploader.Upload(gctx, e.PartTemplateID, ct, pv)
			if errors.Is(err, ErrPreviewReleased) {
				// cleared, re-staged or removed while uploading
				return nil
			}
			if err != nil {
				return err
			}
			return e.resolveMedia(id, pv, publicID)
		})
	}
	return n, g.Wait()
}

func (svc *Service) request(e *Editor, meta TemplateMeta, content Content) ImportRequest {
	req := ImportRequest{
		Name:        core.CleanString(meta.Name),
		Description: meta.Description,
		Status:      core.CleanString(meta.Status),
		Content:     content,
	}
	if req.Name == "" {
		req.Name = e.Kind.String()
	}
	if req.Status == "" {
		req.Status = svc.status
	}
	return req
}

// Notification turns the outcome of a save cycle into the message shown to the user.
func Notification(err error, passages, questions int) core.Notification {
	if err == nil {
		return core.Notification{
			Level:   core.NotificationSuccess,
			Title:   "Template saved",
			Message: fmt.Sprintf("%d passage(s) and %d question(s) submitted for import.", passages, questions),
		}
	}

	n := core.Notification{Level: core.NotificationError, Title: "Save failed", Message: err.Error()}
	var (
		vErr  *core.ValidationError
		mErr  *MediaError
		urErr *UploadRejectedError
		unErr *UploadNetworkError
		srErr *SubmissionRejectedError
		snErr *SubmissionNetworkError
	)
	switch {
	case errors.As(err, &vErr):
		n.Title = "Template is invalid"
		n.Message = vErr.Error()
		n.Details = vErr.Messages()
	case errors.As(err, &mErr):
		n.Title = "File rejected"
		n.Message = mErr.Error()
	case errors.As(err, &urErr):
		n.Title = "Upload rejected"
		if urErr.Message != "" {
			n.Message = urErr.Message
		}
	case errors.As(err, &unErr):
		n.Title = "Upload failed"
		n.Message = "The file could not be uploaded, check your connection and try again."
	case errors.As(err, &srErr):
		n.Title = "Import rejected"
		n.Message = srErr.Message
	case errors.As(err, &snErr):
		n.Title = "Import failed"
		n.Message = "The template could not be submitted, check your connection and try again."
	}
	return n
}

// Drafts

// SaveDraft stores a snapshot of the editor. Staged files are not part of it.
func (svc *Service) SaveDraft(ctx context.Context, e *Editor) (Draft, error) {
	data, err := MarshalGrouped(e.Passages())
	if err != nil {
		return Draft{}, err
	}
	d := Draft{
		PartTemplateID: e.PartTemplateID,
		Part:           e.Kind,
		Content:        data,
		SavedAt:        time.Now().UTC(),
	}
	if err := svc.drafts.PutDraft(ctx, d); err != nil {
		return Draft{}, errors.Wrap(err, "storing draft")
	}
	return d, nil
}

// LoadDraft returns the stored draft of a part template and its passages.
func (svc *Service) LoadDraft(ctx context.Context, partTemplateID string) (Draft, []*Passage, error) {
	d, err := svc.drafts.GetDraft(ctx, core.CleanString(partTemplateID))
	if err != nil {
		return Draft{}, nil, err
	}
	passages, err := ParseGrouped(d.Content)
	if err != nil {
		return Draft{}, nil, errors.Wrap(err, "parsing draft")
	}
	return d, passages, nil
}

func (svc *Service) DeleteDraft(ctx context.Context, partTemplateID string) error {
	return svc.drafts.DeleteDraft(ctx, core.CleanString(partTemplateID))
}

// History lists the save cycles of a part template, most recent first.
func (svc *Service) History(ctx context.Context, partTemplateID string) ([]SaveEntry, error) {
	return svc.saves.QuerySaveEntries(ctx, core.CleanString(partTemplateID))
}
