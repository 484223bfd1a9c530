package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditor_addRemove(t *testing.T) {
	e := NewEditor("pt-1", PartTalks)
	defer e.Close()

	p1, err := e.AddPassage(ContentAudio)
	require.NoError(t, err)
	p2, err := e.AddPassage(ContentText)
	require.NoError(t, err)
	p3, err := e.AddPassage(ContentImage)
	require.NoError(t, err)

	q11, err := e.AddQuestion(p1.ID)
	require.NoError(t, err)
	_, err = e.AddQuestion(p1.ID)
	require.NoError(t, err)
	q21, err := e.AddQuestion(p2.ID)
	require.NoError(t, err)
	q31, err := e.AddQuestion(p3.ID)
	require.NoError(t, err)

	require.NoError(t, e.RemoveQuestion(p1.ID, q11.ID))
	require.NoError(t, e.RemovePassage(p2.ID))
	q32, err := e.AddQuestion(p3.ID)
	require.NoError(t, err)

	passages := e.Passages()
	require.Len(t, passages, 2)
	assert.Equal(t, p1.ID, passages[0].ID)
	assert.Equal(t, p3.ID, passages[1].ID)
	assert.Len(t, passages[0].Questions, 1)
	assert.Equal(t, []string{q31.ID, q32.ID}, []string{passages[1].Questions[0].ID, passages[1].Questions[1].ID})

	ids := make(map[string]bool)
	for _, p := range passages {
		ids[p.ID] = true
	}
	for _, p := range passages {
		for _, q := range p.Questions {
			assert.True(t, ids[q.PassageID], "question %s is orphaned", q.ID)
			assert.Equal(t, p.ID, q.PassageID)
			assert.NotEqual(t, q21.ID, q.ID)
		}
	}
}

func TestEditor_newNodes(t *testing.T) {
	e := NewEditor("pt-1", PartConversations)
	defer e.Close()

	p1, err := e.AddPassage(ContentAudio)
	require.NoError(t, err)
	p2, err := e.AddPassage(ContentAudio)
	require.NoError(t, err)
	assert.NotEqual(t, p1.Ref, p2.Ref)
	assert.Regexp(t, `^P3-[0-9a-f]{8}$`, p1.Ref)

	q, err := e.AddQuestion(p1.ID)
	require.NoError(t, err)
	assert.Equal(t, DifficultyEasy, q.Difficulty)
	assert.Equal(t, 0, q.Correct)
	assert.Equal(t, p1.ID, q.PassageID)

	_, err = e.AddPassage("VIDEO")
	assert.Error(t, err)
}

func TestEditor_structuralSharing(t *testing.T) {
	e := NewEditor("pt-1", PartReadingComprehension)
	defer e.Close()

	p1, q1 := addTextPassage(t, e, "first")
	p2, _ := addTextPassage(t, e, "second")
	before := e.Passages()

	q, err := e.SetOption(p1.ID, q1.ID, 2, "changed")
	require.NoError(t, err)
	assert.Equal(t, "changed", q.Options[2])

	after := e.Passages()
	assert.Same(t, before[1], after[1], "sibling passage must keep its identity")
	assert.Same(t, p2, after[1])
	assert.NotSame(t, before[0], after[0])

	// earlier snapshots are untouched
	assert.Equal(t, "C", before[0].Questions[0].Options[2])
	assert.Equal(t, "C", q1.Options[2])
	assert.Equal(t, "changed", after[0].Questions[0].Options[2])
}

func TestEditor_updates(t *testing.T) {
	e := NewEditor("pt-1", PartTextCompletion)
	defer e.Close()

	p1, q1 := addTextPassage(t, e, "text")
	p2, _ := addTextPassage(t, e, "other")

	p, err := e.UpdatePassage(p1.ID, PassageUpdate{Ref: strPtr("  intro  "), Instructions: strPtr("Read.")})
	require.NoError(t, err)
	assert.Equal(t, "intro", p.Ref)
	assert.Equal(t, "Read.", p.Instructions)
	assert.Equal(t, "text", p.Text)

	_, err = e.UpdatePassage(p2.ID, PassageUpdate{Ref: strPtr("intro")})
	assert.Equal(t, ErrDuplicateRef, err)

	hard := DifficultyHard
	q, err := e.UpdateQuestion(p1.ID, q1.ID, QuestionUpdate{
		Correct:     intPtr(3),
		Difficulty:  &hard,
		Explanation: strPtr("because"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, q.Correct)
	assert.Equal(t, DifficultyHard, q.Difficulty)
	assert.Equal(t, "because", q.Explanation)
	assert.Equal(t, q1.Content, q.Content)

	tests := []struct {
		name    string
		upd     QuestionUpdate
		wantErr error
	}{
		{name: "negative correct", upd: QuestionUpdate{Correct: intPtr(-1)}, wantErr: ErrOptionIndex},
		{name: "correct out of range", upd: QuestionUpdate{Correct: intPtr(NumOptions)}, wantErr: ErrOptionIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.UpdateQuestion(p1.ID, q1.ID, tt.upd)
			assert.Equal(t, tt.wantErr, err)
		})
	}

	bad := Difficulty("IMPOSSIBLE")
	_, err = e.UpdateQuestion(p1.ID, q1.ID, QuestionUpdate{Difficulty: &bad})
	assert.Error(t, err)

	_, err = e.SetOption(p1.ID, q1.ID, 4, "x")
	assert.Equal(t, ErrOptionIndex, err)
}

func TestEditor_notFound(t *testing.T) {
	e := NewEditor("pt-1", PartIncompleteSentences)
	defer e.Close()
	p, q := addTextPassage(t, e, "text")

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{
			name:    "add question to missing passage",
			call:    func() error { _, err := e.AddQuestion("nope"); return err },
			wantErr: ErrPassageNotFound,
		},
		{
			name:    "remove missing passage",
			call:    func() error { return e.RemovePassage("nope") },
			wantErr: ErrPassageNotFound,
		},
		{
			name:    "update missing passage",
			call:    func() error { _, err := e.UpdatePassage("nope", PassageUpdate{}); return err },
			wantErr: ErrPassageNotFound,
		},
		{
			name:    "remove missing question",
			call:    func() error { return e.RemoveQuestion(p.ID, "nope") },
			wantErr: ErrQuestionNotFound,
		},
		{
			name:    "update question of missing passage",
			call:    func() error { _, err := e.UpdateQuestion("nope", q.ID, QuestionUpdate{}); return err },
			wantErr: ErrPassageNotFound,
		},
		{
			name:    "set option of missing question",
			call:    func() error { _, err := e.SetOption(p.ID, "nope", 0, "x"); return err },
			wantErr: ErrQuestionNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			assert.Equal(t, tt.wantErr, err)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}

	// nothing changed
	passages := e.Passages()
	require.Len(t, passages, 1)
	assert.Len(t, passages[0].Questions, 1)
}

func TestEditor_previewRelease(t *testing.T) {
	tests := []struct {
		name string
		act  func(t *testing.T, e *Editor, p *Passage)
	}{
		{
			name: "remove passage",
			act: func(t *testing.T, e *Editor, p *Passage) {
				require.NoError(t, e.RemovePassage(p.ID))
			},
		},
		{
			name: "clear media",
			act: func(t *testing.T, e *Editor, p *Passage) {
				_, err := e.ClearMedia(p.ID)
				require.NoError(t, err)
			},
		},
		{
			name: "change type",
			act: func(t *testing.T, e *Editor, p *Passage) {
				audio := ContentAudio
				up, err := e.UpdatePassage(p.ID, PassageUpdate{Type: &audio})
				require.NoError(t, err)
				assert.True(t, up.Media.IsEmpty())
			},
		},
		{
			name: "close editor",
			act: func(t *testing.T, e *Editor, p *Passage) {
				e.Close()
			},
		},
		{
			name: "hydrate",
			act: func(t *testing.T, e *Editor, p *Passage) {
				require.NoError(t, e.Hydrate(nil))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := newTestPreviews(t)
			e := NewEditor("pt-1", PartPhotographs)
			defer e.Close()

			p, err := e.AddPassage(ContentImage)
			require.NoError(t, err)
			pv := stageFile(t, ps, pngHeader, "photo.png")
			p, err = e.StageMedia(p.ID, pv)
			require.NoError(t, err)
			require.Equal(t, 1, ps.Live())
			assert.Equal(t, "image/png", pv.MIMEType)

			tt.act(t, e, p)

			assert.Equal(t, 0, ps.Live())
			assert.True(t, pv.Released())
			assert.NoFileExists(t, pv.path)
			_, err = pv.Open()
			assert.Equal(t, ErrPreviewReleased, err)
		})
	}
}

func TestEditor_replaceMedia(t *testing.T) {
	ps := newTestPreviews(t)
	e := NewEditor("pt-1", PartQuestionResponse)
	defer e.Close()

	p, err := e.AddPassage(ContentAudio)
	require.NoError(t, err)
	first := stageFile(t, ps, mp3Header, "one.mp3")
	_, err = e.StageMedia(p.ID, first)
	require.NoError(t, err)

	second := stageFile(t, ps, mp3Header, "two.mp3")
	p, err = e.StageMedia(p.ID, second)
	require.NoError(t, err)

	assert.True(t, first.Released())
	assert.False(t, second.Released())
	assert.Equal(t, 1, ps.Live())
	assert.Same(t, second, p.Media.Preview)
	assert.FileExists(t, second.path)
	assert.Equal(t, filepath.Dir(first.path), filepath.Dir(second.path))

	// text passages hold no media
	text, err := e.AddPassage(ContentText)
	require.NoError(t, err)
	third := stageFile(t, ps, mp3Header, "three.mp3")
	_, err = e.StageMedia(text.ID, third)
	assert.Equal(t, ErrNotMedia, err)
	assert.False(t, third.Released(), "the caller keeps a rejected preview")
	require.NoError(t, third.Release())
}

func TestEditor_resolveMedia(t *testing.T) {
	ps := newTestPreviews(t)
	e := NewEditor("pt-1", PartPhotographs)
	defer e.Close()

	p, err := e.AddPassage(ContentImage)
	require.NoError(t, err)
	stale := stageFile(t, ps, pngHeader, "old.png")
	_, err = e.StageMedia(p.ID, stale)
	require.NoError(t, err)
	fresh := stageFile(t, ps, pngHeader, "new.png")
	_, err = e.StageMedia(p.ID, fresh)
	require.NoError(t, err)

	// the upload of a replaced file is ignored
	require.NoError(t, e.resolveMedia(p.ID, stale, "https://assets.test/old.png"))
	got, err := e.Passage(p.ID)
	require.NoError(t, err)
	assert.Same(t, fresh, got.Media.Preview)
	assert.Empty(t, got.Media.PublicID)

	require.NoError(t, e.resolveMedia(p.ID, fresh, "https://assets.test/new.png"))
	got, err = e.Passage(p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Media.Preview)
	assert.Equal(t, "https://assets.test/new.png", got.Media.PublicID)
	assert.True(t, fresh.Released())

	// removed passages are ignored too
	require.NoError(t, e.resolveMedia("gone", fresh, "https://assets.test/x.png"))
}

func TestEditor_close(t *testing.T) {
	e := NewEditor("pt-1", PartTalks)
	p, _ := addTextPassage(t, e, "text")

	e.Close()
	e.Close()

	assert.True(t, e.Closed())
	select {
	case <-e.Context().Done():
	default:
		t.Error("editor context was not cancelled")
	}

	_, err := e.AddPassage(ContentText)
	assert.Equal(t, ErrEditorClosed, err)
	_, err = e.AddQuestion(p.ID)
	assert.Equal(t, ErrEditorClosed, err)
	assert.Equal(t, ErrEditorClosed, e.RemovePassage(p.ID))
	assert.Equal(t, ErrEditorClosed, e.Hydrate(nil))
	assert.Equal(t, ErrEditorClosed, e.beginSave())
}

func TestEditor_hydrate(t *testing.T) {
	e := NewEditor("pt-1", PartReadingComprehension)
	defer e.Close()

	passages := []*Passage{
		{Ref: "P7-a", Type: ContentText, Text: "x", Questions: []*Question{{Content: "q1"}, {Content: "q2"}}},
		{ID: "keep", Ref: "P7-b", Type: ContentImage, Media: Media{PublicID: "https://assets.test/b.png"}},
	}
	require.NoError(t, e.Hydrate(passages))

	got := e.Passages()
	require.Len(t, got, 2)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, "keep", got[1].ID)
	for _, q := range got[0].Questions {
		assert.NotEmpty(t, q.ID)
		assert.Equal(t, got[0].ID, q.PassageID)
	}
	// the input is not aliased
	assert.Empty(t, passages[0].ID)
	assert.Equal(t, map[string]int{got[0].Questions[0].ID: 1, got[0].Questions[1].ID: 2}, e.QuestionNumbers())
}

func TestEditor_hydrate_duplicateIDs(t *testing.T) {
	e := NewEditor("pt-1", PartReadingComprehension)
	defer e.Close()

	passages, err := ParseGrouped([]byte(`[
		{"id": "x", "ref": "a", "type": "TEXT", "content": "first", "questions": [{"id": "q", "content": "q1"}, {"id": "q", "content": "q2"}]},
		{"id": "x", "ref": "b", "type": "TEXT", "content": "second", "questions": [{"id": "q", "content": "q3"}]}
	]`))
	require.NoError(t, err)
	require.NoError(t, e.Hydrate(passages))

	got := e.Passages()
	require.Len(t, got, 2)
	assert.Equal(t, "x", got[0].ID)
	assert.NotEqual(t, got[0].ID, got[1].ID)

	ids := map[string]bool{}
	for _, p := range got {
		for _, q := range p.Questions {
			assert.False(t, ids[q.ID], "question id %q repeated", q.ID)
			ids[q.ID] = true
			assert.Equal(t, p.ID, q.PassageID)
		}
	}
	assert.Len(t, e.QuestionNumbers(), 3)

	// edits reach exactly one node
	_, err = e.UpdatePassage(got[1].ID, PassageUpdate{Text: strPtr("changed")})
	require.NoError(t, err)
	require.NoError(t, e.RemovePassage(got[0].ID))
	left := e.Passages()
	require.Len(t, left, 1)
	assert.Equal(t, "b", left[0].Ref)
	assert.Equal(t, "changed", left[0].Text)
}

func TestPreviews_stage(t *testing.T) {
	ps := newTestPreviews(t)

	pv := stageFile(t, ps, mp3Header, "talk.mp3")
	assert.Equal(t, "audio/mpeg", pv.MIMEType)
	assert.Equal(t, "talk.mp3", pv.Filename)
	assert.EqualValues(t, 512, pv.Size)
	assert.Equal(t, ".mp3", filepath.Ext(pv.path))

	got, ok := ps.Get(pv.ID)
	require.True(t, ok)
	assert.Same(t, pv, got)

	rc, err := pv.Open()
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	ps.ReleaseAll()
	assert.Equal(t, 0, ps.Live())
	_, err = os.Stat(pv.path)
	assert.True(t, os.IsNotExist(err))
	_, ok = ps.Get(pv.ID)
	assert.False(t, ok)

	// releasing twice, or a nil preview, is fine
	assert.NoError(t, pv.Release())
	var nilPv *Preview
	assert.NoError(t, nilPv.Release())
}
