package template

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

var ErrPreviewReleased = errors.New("preview released")

// Previews stages uploaded files on disk and keeps track of every live Preview.
// A Preview stays live until it is released: by its owning editor when the passage is removed, its media replaced or
// the editor closed.
type Previews struct {
	dir   string
	mu    sync.Mutex
	alive map[string]*Preview
}

// Preview is the handle of a staged file.
type Preview struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`

	path  string
	owner *Previews
}

func NewPreviews(dir string) (*Previews, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "creating staging directory")
	}
	return &Previews{dir: dir, alive: make(map[string]*Preview)}, nil
}

// Stage copies r into the staging directory and sniffs its MIME type.
func (ps *Previews) Stage(r io.Reader, filename string) (*Preview, error) {
	id := newID()
	path := filepath.Join(ps.dir, id+filepath.Ext(filename))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, errors.Wrap(err, "creating staged file")
	}
	size, err := io.Copy(f, r)
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, errors.Wrap(err, "writing staged file")
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, errors.Wrap(err, "detecting mime type")
	}

	pv := &Preview{
		ID:       id,
		Filename: filepath.Base(filename),
		MIMEType: mimeBase(mtype.String()),
		Size:     size,
		path:     path,
		owner:    ps,
	}
	ps.mu.Lock()
	ps.alive[id] = pv
	ps.mu.Unlock()
	return pv, nil
}

// Get returns a live preview.
func (ps *Previews) Get(id string) (*Preview, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	pv, ok := ps.alive[id]
	return pv, ok
}

// Live is the number of previews that have not been released.
func (ps *Previews) Live() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.alive)
}

// ReleaseAll releases every live preview.
func (ps *Previews) ReleaseAll() {
	ps.mu.Lock()
	pvs := make([]*Preview, 0, len(ps.alive))
	for _, pv := range ps.alive {
		pvs = append(pvs, pv)
	}
	ps.mu.Unlock()

	for _, pv := range pvs {
		_ = pv.Release()
	}
}

// Open reads the staged file.
func (pv *Preview) Open() (io.ReadCloser, error) {
	if pv.Released() {
		return nil, ErrPreviewReleased
	}
	return os.Open(pv.path)
}

func (pv *Preview) Released() bool {
	pv.owner.mu.Lock()
	defer pv.owner.mu.Unlock()
	_, ok := pv.owner.alive[pv.ID]
	return !ok
}

// Release removes the staged file. It is safe to call more than once.
func (pv *Preview) Release() error {
	if pv == nil {
		return nil
	}
	pv.owner.mu.Lock()
	if _, ok := pv.owner.alive[pv.ID]; !ok {
		pv.owner.mu.Unlock()
		return nil
	}
	delete(pv.owner.alive, pv.ID)
	pv.owner.mu.Unlock()

	if err := os.Remove(pv.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing staged file")
	}
	return nil
}

// mimeBase drops MIME parameters: "text/plain; charset=utf-8" -> "text/plain".
func mimeBase(mtype string) string {
	for i := 0; i < len(mtype); i++ {
		if mtype[i] == ';' {
			return mtype[:i]
		}
	}
	return mtype
}
