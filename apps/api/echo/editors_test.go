package echoapi

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/prepdesk/core/template"
)

func newTestRegistry(maxIdle time.Duration) (*editorRegistry, func(time.Duration)) {
	r := newEditorRegistry(maxIdle)
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	return r, func(d time.Duration) { now = now.Add(d) }
}

func TestEditorRegistry_closeIdle(t *testing.T) {
	r, advance := newTestRegistry(time.Hour)

	ps, err := template.NewPreviews(t.TempDir())
	require.NoError(t, err)
	stale := template.NewEditor("pt-1", template.PartPhotographs)
	p, err := stale.AddPassage(template.ContentImage)
	require.NoError(t, err)
	pv, err := ps.Stage(bytes.NewReader(append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)), "photo.png")
	require.NoError(t, err)
	_, err = stale.StageMedia(p.ID, pv)
	require.NoError(t, err)
	r.add(stale)

	active := template.NewEditor("pt-2", template.PartTalks)
	r.add(active)

	advance(40 * time.Minute)
	_, err = r.get(active.ID)
	require.NoError(t, err)
	advance(40 * time.Minute)

	// stale has been idle 80m, active 40m
	fresh := template.NewEditor("pt-3", template.PartTalks)
	r.add(fresh)

	_, err = r.get(stale.ID)
	assert.Equal(t, errEditorNotFound, err)
	assert.True(t, stale.Closed())
	assert.Equal(t, 0, ps.Live(), "closing releases the staged files")

	assert.False(t, active.Closed())
	assert.Len(t, r.list(), 2)

	advance(2 * time.Hour)
	assert.Equal(t, 2, r.closeIdle())
	assert.Empty(t, r.list())
	assert.True(t, active.Closed())
	assert.True(t, fresh.Closed())
}

func TestEditorRegistry_closeIdle_disabled(t *testing.T) {
	r, advance := newTestRegistry(0)
	e := template.NewEditor("pt-1", template.PartTalks)
	defer e.Close()
	r.add(e)

	advance(365 * 24 * time.Hour)
	assert.Zero(t, r.closeIdle())
	got, err := r.get(e.ID)
	require.NoError(t, err)
	assert.Same(t, e, got)
}

func TestEditorRegistry_close(t *testing.T) {
	r, _ := newTestRegistry(time.Hour)
	e := template.NewEditor("pt-1", template.PartTalks)
	r.add(e)

	require.NoError(t, r.close(e.ID))
	assert.True(t, e.Closed())
	assert.Equal(t, errEditorNotFound, r.close(e.ID))
}
