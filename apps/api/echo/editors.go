package echoapi

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/prepdesk/core/template"
)

var errEditorNotFound = errors.Wrap(template.ErrNotFound, "editor")

type (
	// editorRegistry holds the open editors of the API, keyed by editor ID.
	// Editors left untouched for maxIdle are closed on the next registry access; maxIdle <= 0 keeps them forever.
	editorRegistry struct {
		mu      sync.RWMutex
		editors map[string]*openEditor
		maxIdle time.Duration
		now     func() time.Time
	}

	openEditor struct {
		*template.Editor
		lastUsed time.Time
	}
)

func newEditorRegistry(maxIdle time.Duration) *editorRegistry {
	return &editorRegistry{
		editors: make(map[string]*openEditor),
		maxIdle: maxIdle,
		now:     time.Now,
	}
}

func (r *editorRegistry) add(e *template.Editor) {
	r.closeIdle()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.editors[e.ID] = &openEditor{Editor: e, lastUsed: r.now()}
}

// get returns the editor and marks it as used.
func (r *editorRegistry) get(id string) (*template.Editor, error) {
	r.closeIdle()

	r.mu.Lock()
	defer r.mu.Unlock()
	oe, ok := r.editors[id]
	if !ok {
		return nil, errEditorNotFound
	}
	oe.lastUsed = r.now()
	return oe.Editor, nil
}

// list returns the open editors, by part template then editor ID.
func (r *editorRegistry) list() []*template.Editor {
	r.closeIdle()

	r.mu.RLock()
	editors := make([]*template.Editor, 0, len(r.editors))
	for _, oe := range r.editors {
		editors = append(editors, oe.Editor)
	}
	r.mu.RUnlock()

	sort.Slice(editors, func(i, j int) bool {
		if editors[i].PartTemplateID != editors[j].PartTemplateID {
			return editors[i].PartTemplateID < editors[j].PartTemplateID
		}
		return editors[i].ID < editors[j].ID
	})
	return editors
}

// close closes the editor and forgets it.
func (r *editorRegistry) close(id string) error {
	r.mu.Lock()
	oe, ok := r.editors[id]
	delete(r.editors, id)
	r.mu.Unlock()

	if !ok {
		return errEditorNotFound
	}
	oe.Close()
	return nil
}

// closeIdle closes the editors unused for longer than maxIdle and returns how many it closed.
// An editor in the middle of a save is never idle.
func (r *editorRegistry) closeIdle() int {
	if r.maxIdle <= 0 {
		return 0
	}
	deadline := r.now().Add(-r.maxIdle)

	var idle []*openEditor
	r.mu.Lock()
	for id, oe := range r.editors {
		if oe.lastUsed.Before(deadline) && oe.State() == template.StateIdle {
			idle = append(idle, oe)
			delete(r.editors, id)
		}
	}
	r.mu.Unlock()

	for _, oe := range idle {
		oe.Close()
	}
	return len(idle)
}

func (r *editorRegistry) closeAll() {
	r.mu.Lock()
	editors := r.editors
	r.editors = make(map[string]*openEditor)
	r.mu.Unlock()

	for _, oe := range editors {
		oe.Close()
	}
}
