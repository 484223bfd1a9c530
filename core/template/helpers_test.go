package template

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/prepdesk/core"
)

var (
	pngHeader = []byte("\x89PNG\r\n\x1a\n")
	mp3Header = []byte("ID3\x03\x00\x00\x00\x00\x00\x00")
)

// fakeFile returns size bytes starting with header.
func fakeFile(header []byte, size int) []byte {
	data := make([]byte, size)
	copy(data, header)
	return data
}

func newTestPreviews(t *testing.T) *Previews {
	ps, err := NewPreviews(t.TempDir())
	require.NoError(t, err)
	return ps
}

func stageFile(t *testing.T, ps *Previews, header []byte, filename string) *Preview {
	pv, err := ps.Stage(bytes.NewReader(fakeFile(header, 512)), filename)
	require.NoError(t, err)
	return pv
}

func newTestGate() *Gate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	return NewGate(validate, translator)
}

// addTextPassage adds a TEXT passage with one complete question.
func addTextPassage(t *testing.T, e *Editor, text string) (*Passage, *Question) {
	p, err := e.AddPassage(ContentText)
	require.NoError(t, err)
	p, err = e.UpdatePassage(p.ID, PassageUpdate{Text: &text})
	require.NoError(t, err)
	q := addQuestion(t, e, p.ID)
	p, err = e.Passage(p.ID)
	require.NoError(t, err)
	return p, q
}

// addQuestion adds a complete question to a passage.
func addQuestion(t *testing.T, e *Editor, passageID string) *Question {
	q, err := e.AddQuestion(passageID)
	require.NoError(t, err)
	content := "What is it about?"
	opts := [NumOptions]string{"A", "B", "C", "D"}
	q, err = e.UpdateQuestion(passageID, q.ID, QuestionUpdate{Content: &content, Options: &opts})
	require.NoError(t, err)
	return q
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// fakes

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []core.Notification
}

func (rn *recordingNotifier) Notify(_ context.Context, n core.Notification) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	rn.notes = append(rn.notes, n)
}

func (rn *recordingNotifier) all() []core.Notification {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return append([]core.Notification(nil), rn.notes...)
}

type fakeUploader struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, pv *Preview) (string, error)
}

func (fu *fakeUploader) Upload(ctx context.Context, _ string, _ ContentType, pv *Preview) (string, error) {
	fu.mu.Lock()
	fu.calls++
	fu.mu.Unlock()
	if fu.fn != nil {
		return fu.fn(ctx, pv)
	}
	return "https://assets.test/" + pv.Filename, nil
}

func (fu *fakeUploader) count() int {
	fu.mu.Lock()
	defer fu.mu.Unlock()
	return fu.calls
}

type fakeImporter struct {
	mu   sync.Mutex
	reqs []ImportRequest
	err  error
}

func (fi *fakeImporter) EnqueueImport(_ context.Context, _ string, req ImportRequest) error {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	fi.reqs = append(fi.reqs, req)
	return fi.err
}

func (fi *fakeImporter) requests() []ImportRequest {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return append([]ImportRequest(nil), fi.reqs...)
}

type fakeSaveLog struct {
	mu      sync.Mutex
	entries []SaveEntry
}

func (fl *fakeSaveLog) AddSaveEntry(_ context.Context, entry SaveEntry) (SaveEntry, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	entry.ID = int64(len(fl.entries) + 1)
	fl.entries = append(fl.entries, entry)
	return entry, nil
}

func (fl *fakeSaveLog) QuerySaveEntries(_ context.Context, partTemplateID string) ([]SaveEntry, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	var entries []SaveEntry
	for i := len(fl.entries) - 1; i >= 0; i-- {
		if fl.entries[i].PartTemplateID == partTemplateID {
			entries = append(entries, fl.entries[i])
		}
	}
	return entries, nil
}

type fakeDrafts struct {
	mu     sync.Mutex
	drafts map[string]Draft
}

func (fd *fakeDrafts) PutDraft(_ context.Context, d Draft) error {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.drafts == nil {
		fd.drafts = make(map[string]Draft)
	}
	fd.drafts[d.PartTemplateID] = d
	return nil
}

func (fd *fakeDrafts) GetDraft(_ context.Context, partTemplateID string) (Draft, error) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	d, ok := fd.drafts[partTemplateID]
	if !ok {
		return Draft{}, ErrDraftNotFound
	}
	return d, nil
}

func (fd *fakeDrafts) DeleteDraft(_ context.Context, partTemplateID string) error {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if _, ok := fd.drafts[partTemplateID]; !ok {
		return ErrDraftNotFound
	}
	delete(fd.drafts, partTemplateID)
	return nil
}
