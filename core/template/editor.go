package template

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/prepdesk/core"
)

// SaveState is a step of the save cycle of an Editor.
type SaveState string

const (
	StateIdle       SaveState = "idle"
	StateValidating SaveState = "validating"
	StateInvalid    SaveState = "invalid"
	StateUploading  SaveState = "uploading"
	StateAssembling SaveState = "assembling"
	StateSubmitting SaveState = "submitting"
	StateSuccess    SaveState = "success"
	StateFailure    SaveState = "failure"
)

type (
	// PassageUpdate holds the passage fields to change; nil fields are left untouched.
	PassageUpdate struct {
		Ref          *string      `json:"ref"`
		Type         *ContentType `json:"type"`
		Text         *string      `json:"text"`
		Instructions *string      `json:"instructions"`
	}

	// QuestionUpdate holds the question fields to change; nil fields are left untouched.
	QuestionUpdate struct {
		Content     *string             `json:"content"`
		Options     *[NumOptions]string `json:"options"`
		Correct     *int                `json:"correct"`
		Difficulty  *Difficulty         `json:"difficulty"`
		Explanation *string             `json:"explanation"`
	}
)

// Editor owns the passages of one part template while it is being authored.
//
// Every mutation replaces the addressed node (and the slices leading to it) with an updated copy: nodes returned by
// earlier calls are never modified, and siblings of a mutated node keep their identity.
// Removing a node releases its preview synchronously. Closing the editor releases every preview it holds, cancels its
// Context and makes every later mutation fail with ErrEditorClosed.
type Editor struct {
	ID             string
	PartTemplateID string
	Kind           PartKind

	mu        sync.Mutex
	passages  []*Passage
	closed    bool
	saving    bool
	state     SaveState
	listeners map[int]func(SaveState)
	nextLsnr  int

	ctx    context.Context
	cancel context.CancelFunc
}

func NewEditor(partTemplateID string, kind PartKind) *Editor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Editor{
		ID:             newID(),
		PartTemplateID: core.CleanString(partTemplateID),
		Kind:           kind,
		state:          StateIdle,
		listeners:      make(map[int]func(SaveState)),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Context is cancelled when the editor is closed.
func (e *Editor) Context() context.Context { return e.ctx }

// LogFields identifies the editor in log entries.
func (e *Editor) LogFields() map[string]interface{} {
	return map[string]interface{}{
		"editor":        e.ID,
		"part_template": e.PartTemplateID,
		"part":          int(e.Kind),
	}
}

func (e *Editor) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close releases every preview held by the editor. It is safe to call more than once.
func (e *Editor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	passages := e.passages
	e.mu.Unlock()

	e.cancel()
	for _, p := range passages {
		_ = p.Media.Preview.Release()
	}
}

// Passages returns the current passages. The returned nodes must not be modified.
func (e *Editor) Passages() []*Passage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Passage(nil), e.passages...)
}

func (e *Editor) Passage(id string) (*Passage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i := e.passageIndex(id); i >= 0 {
		return e.passages[i], nil
	}
	return nil, ErrPassageNotFound
}

// QuestionNumbers returns the display number of every question, keyed by question ID.
func (e *Editor) QuestionNumbers() map[string]int {
	return QuestionNumbers(e.Passages())
}

// Hydrate replaces the passages of the editor, e.g. with the output of ParseContent.
// Previews held by the replaced passages are released.
func (e *Editor) Hydrate(passages []*Passage) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEditorClosed
	}
	old := e.passages
	e.passages = normalize(passages)
	kept := make(map[*Preview]bool, len(e.passages))
	for _, p := range e.passages {
		if p.Media.Preview != nil {
			kept[p.Media.Preview] = true
		}
	}
	e.mu.Unlock()

	for _, p := range old {
		if !kept[p.Media.Preview] {
			_ = p.Media.Preview.Release()
		}
	}
	return nil
}

func (e *Editor) AddPassage(ct ContentType) (*Passage, error) {
	if !ct.Valid() {
		return nil, errors.Wrapf(ErrInvalidValue, "unknown content type %q", ct)
	}
	var added *Passage
	err := e.mutate(func(passages []*Passage) ([]*Passage, error) {
		added = &Passage{ID: newID(), Ref: e.uniqueRef(), Type: ct}
		return append(passages, added), nil
	})
	return added, err
}

func (e *Editor) RemovePassage(id string) error {
	return e.mutate(func(passages []*Passage) ([]*Passage, error) {
		i := indexOf(passages, id)
		if i < 0 {
			return nil, ErrPassageNotFound
		}
		if err := passages[i].Media.Preview.Release(); err != nil {
			return nil, errors.Wrap(err, "releasing preview")
		}
		return append(passages[:i], passages[i+1:]...), nil
	})
}

func (e *Editor) UpdatePassage(id string, upd PassageUpdate) (*Passage, error) {
	return e.replacePassage(id, func(p *Passage) error {
		if upd.Ref != nil {
			ref := core.CleanString(*upd.Ref)
			if ref != p.Ref && e.refTaken(ref) {
				return ErrDuplicateRef
			}
			p.Ref = ref
		}
		if upd.Type != nil && *upd.Type != p.Type {
			if !upd.Type.Valid() {
				return errors.Wrapf(ErrInvalidValue, "unknown content type %q", *upd.Type)
			}
			// the media of the previous type cannot serve the new one
			if err := p.Media.Preview.Release(); err != nil {
				return errors.Wrap(err, "releasing preview")
			}
			p.Media = Media{}
			p.Type = *upd.Type
		}
		if upd.Text != nil {
			p.Text = *upd.Text
		}
		if upd.Instructions != nil {
			p.Instructions = *upd.Instructions
		}
		return nil
	})
}

// StageMedia attaches a staged file to a media passage, releasing the preview it replaces.
// The editor owns pv once StageMedia succeeds; on error the caller keeps it.
func (e *Editor) StageMedia(id string, pv *Preview) (*Passage, error) {
	return e.replacePassage(id, func(p *Passage) error {
		if !p.Type.IsMedia() {
			return ErrNotMedia
		}
		if p.Media.Preview != pv {
			if err := p.Media.Preview.Release(); err != nil {
				return errors.Wrap(err, "releasing preview")
			}
		}
		p.Media = Media{Preview: pv}
		return nil
	})
}

// ClearMedia drops both the staged file and the resolved identifier of a passage.
func (e *Editor) ClearMedia(id string) (*Passage, error) {
	return e.replacePassage(id, func(p *Passage) error {
		if err := p.Media.Preview.Release(); err != nil {
			return errors.Wrap(err, "releasing preview")
		}
		p.Media = Media{}
		return nil
	})
}

// resolveMedia records the remote identifier of an uploaded preview and releases it.
// It is a no-op when the passage no longer holds pv (removed or re-staged while uploading).
func (e *Editor) resolveMedia(id string, pv *Preview, publicID string) error {
	_, err := e.replacePassage(id, func(p *Passage) error {
		if p.Media.Preview != pv {
			return errStale
		}
		if err := pv.Release(); err != nil {
			return errors.Wrap(err, "releasing preview")
		}
		p.Media = Media{PublicID: publicID}
		return nil
	})
	if err == errStale || err == ErrPassageNotFound {
		return nil
	}
	return err
}

var errStale = errors.New("stale upload")

func (e *Editor) AddQuestion(passageID string) (*Question, error) {
	var added *Question
	_, err := e.replacePassage(passageID, func(p *Passage) error {
		added = newQuestion(p.ID)
		p.Questions = append(p.Questions, added)
		return nil
	})
	return added, err
}

func (e *Editor) RemoveQuestion(passageID, questionID string) error {
	_, err := e.replacePassage(passageID, func(p *Passage) error {
		i := p.questionIndex(questionID)
		if i < 0 {
			return ErrQuestionNotFound
		}
		p.Questions = append(p.Questions[:i], p.Questions[i+1:]...)
		return nil
	})
	return err
}

func (e *Editor) UpdateQuestion(passageID, questionID string, upd QuestionUpdate) (*Question, error) {
	return e.replaceQuestion(passageID, questionID, func(q *Question) error {
		if upd.Correct != nil {
			if *upd.Correct < 0 || *upd.Correct >= NumOptions {
				return ErrOptionIndex
			}
			q.Correct = *upd.Correct
		}
		if upd.Difficulty != nil {
			if !upd.Difficulty.Valid() {
				return errors.Wrapf(ErrInvalidValue, "unknown difficulty %q", *upd.Difficulty)
			}
			q.Difficulty = *upd.Difficulty
		}
		if upd.Content != nil {
			q.Content = *upd.Content
		}
		if upd.Options != nil {
			q.Options = *upd.Options
		}
		if upd.Explanation != nil {
			q.Explanation = *upd.Explanation
		}
		return nil
	})
}

// SetOption changes the text of the answer option at idx.
func (e *Editor) SetOption(passageID, questionID string, idx int, text string) (*Question, error) {
	if idx < 0 || idx >= NumOptions {
		return nil, ErrOptionIndex
	}
	return e.replaceQuestion(passageID, questionID, func(q *Question) error {
		q.Options[idx] = text
		return nil
	})
}

// Save cycle bookkeeping

func (e *Editor) State() SaveState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Subscribe registers fn to be called on every save state transition. The returned func unsubscribes.
func (e *Editor) Subscribe(fn func(SaveState)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextLsnr
	e.nextLsnr++
	e.listeners[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

func (e *Editor) setState(s SaveState) {
	e.mu.Lock()
	e.state = s
	fns := make([]func(SaveState), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// beginSave takes the in-flight flag.
func (e *Editor) beginSave() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEditorClosed
	}
	if e.saving {
		return ErrSaveInProgress
	}
	e.saving = true
	return nil
}

func (e *Editor) endSave() {
	e.mu.Lock()
	e.saving = false
	e.mu.Unlock()
	e.setState(StateIdle)
}

// helpers

func (e *Editor) mutate(fn func([]*Passage) ([]*Passage, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEditorClosed
	}
	passages, err := fn(append([]*Passage(nil), e.passages...))
	if err != nil {
		return err
	}
	e.passages = passages
	return nil
}

func (e *Editor) replacePassage(id string, fn func(*Passage) error) (*Passage, error) {
	var updated *Passage
	err := e.mutate(func(passages []*Passage) ([]*Passage, error) {
		i := indexOf(passages, id)
		if i < 0 {
			return nil, ErrPassageNotFound
		}
		updated = passages[i].clone()
		if err := fn(updated); err != nil {
			return nil, err
		}
		passages[i] = updated
		return passages, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (e *Editor) replaceQuestion(passageID, questionID string, fn func(*Question) error) (*Question, error) {
	var updated *Question
	_, err := e.replacePassage(passageID, func(p *Passage) error {
		i := p.questionIndex(questionID)
		if i < 0 {
			return ErrQuestionNotFound
		}
		updated = p.Questions[i].clone()
		if err := fn(updated); err != nil {
			return err
		}
		p.Questions[i] = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// passageIndex must be called with e.mu held.
func (e *Editor) passageIndex(id string) int { return indexOf(e.passages, id) }

// refTaken must be called with e.mu held.
func (e *Editor) refTaken(ref string) bool {
	for _, p := range e.passages {
		if p.Ref == ref {
			return true
		}
	}
	return false
}

// uniqueRef must be called with e.mu held.
func (e *Editor) uniqueRef() string {
	for {
		if ref := newRef(e.Kind); !e.refTaken(ref) {
			return ref
		}
	}
}

func indexOf(passages []*Passage, id string) int {
	for i, p := range passages {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// normalize links every question to its passage. Missing or repeated identities are replaced with fresh ones,
// since every lookup in the editor goes by ID.
func normalize(passages []*Passage) []*Passage {
	out := make([]*Passage, 0, len(passages))
	seen := make(map[string]bool)
	fresh := func(id string) string {
		if id == "" || seen[id] {
			id = newID()
		}
		seen[id] = true
		return id
	}
	for _, p := range passages {
		p = p.clone()
		p.ID = fresh(p.ID)
		for i, q := range p.Questions {
			q = q.clone()
			q.ID = fresh(q.ID)
			q.PassageID = p.ID
			p.Questions[i] = q
		}
		out = append(out, p)
	}
	return out
}
