package template

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionNumbers(t *testing.T) {
	passages := []*Passage{
		{ID: "a", Questions: []*Question{{ID: "a1"}, {ID: "a2"}}},
		{ID: "b"},
		{ID: "c", Questions: []*Question{{ID: "c1"}, {ID: "c2"}, {ID: "c3"}}},
	}

	got := QuestionNumbers(passages)
	want := map[string]int{"a1": 1, "a2": 2, "c1": 3, "c2": 4, "c3": 5}
	assert.Equal(t, want, got)
}

func Test_answers(t *testing.T) {
	q := &Question{Options: [NumOptions]string{"A", "B", "C", "D"}, Correct: 2}

	want := []AnswerPayload{
		{Text: "A", IsCorrect: false, Order: 1},
		{Text: "B", IsCorrect: false, Order: 2},
		{Text: "C", IsCorrect: true, Order: 3},
		{Text: "D", IsCorrect: false, Order: 4},
	}
	assert.Equal(t, want, answers(q))
}

func TestAssemble_textPassage(t *testing.T) {
	e := NewEditor("pt-1", PartReadingComprehension)
	defer e.Close()

	p, err := e.AddPassage(ContentText)
	require.NoError(t, err)
	_, err = e.UpdatePassage(p.ID, PassageUpdate{Text: strPtr("Read the notice.")})
	require.NoError(t, err)
	q, err := e.AddQuestion(p.ID)
	require.NoError(t, err)
	opts := [NumOptions]string{"Sale", "Closure", "Hiring", "Event"}
	_, err = e.UpdateQuestion(p.ID, q.ID, QuestionUpdate{
		Content: strPtr("What is the notice about?"),
		Options: &opts,
		Correct: intPtr(1),
	})
	require.NoError(t, err)

	require.NoError(t, newTestGate().Check(e.Kind, e.Passages()))

	content, err := Assemble(e.Kind, e.Passages())
	require.NoError(t, err)

	require.Len(t, content.Passages, 1)
	assert.Equal(t, PassagePayload{
		Ref:          p.Ref,
		Type:         ContentText,
		Content:      "Read the notice.",
		PublicID:     "",
		Instructions: "",
	}, content.Passages[0])

	require.Len(t, content.Questions, 1)
	qp := content.Questions[0]
	assert.Equal(t, "What is the notice about?", qp.Content)
	assert.Equal(t, p.Ref, qp.PassageRef)
	assert.Equal(t, PartReadingComprehension, qp.Part)
	assert.Equal(t, DifficultyEasy, qp.Difficulty)
	require.Len(t, qp.Answers, NumOptions)
	for i, a := range qp.Answers {
		assert.Equal(t, i == 1, a.IsCorrect, "answers[%d]", i)
	}

	// wire names
	data, err := json.Marshal(content)
	require.NoError(t, err)
	var wire map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, map[string]interface{}{
		"ref":          p.Ref,
		"type":         "TEXT",
		"content":      "Read the notice.",
		"public_id":    "",
		"instructions": "",
	}, wire["passages"][0])
	assert.EqualValues(t, 7, wire["questions"][0]["part"])
	assert.Contains(t, wire["questions"][0], "passage_ref")
	assert.NotContains(t, wire["questions"][0], "explanation")
}

func TestAssemble_media(t *testing.T) {
	ps := newTestPreviews(t)

	passages := []*Passage{
		{Ref: "img", Type: ContentImage, Media: Media{PublicID: "https://assets.test/a.png"},
			Questions: []*Question{{Content: "q1", Options: [NumOptions]string{"a", "b", "c", "d"}}}},
		{Ref: "txt", Type: ContentText, Text: "t",
			Questions: []*Question{{Content: "q2"}, {Content: "q3"}}},
	}
	content, err := Assemble(PartTextCompletion, passages)
	require.NoError(t, err)

	assert.Equal(t, "", content.Passages[0].Content)
	assert.Equal(t, "https://assets.test/a.png", content.Passages[0].PublicID)
	assert.Equal(t, []string{"img", "txt", "txt"}, []string{
		content.Questions[0].PassageRef,
		content.Questions[1].PassageRef,
		content.Questions[2].PassageRef,
	})

	// a staged file that has not been uploaded cannot be assembled
	staged := []*Passage{{Ref: "img", Type: ContentImage, Media: Media{Preview: stageFile(t, ps, pngHeader, "a.png")}}}
	_, err = Assemble(PartTextCompletion, staged)
	assert.ErrorIs(t, err, ErrUnresolvedMedia)
}
