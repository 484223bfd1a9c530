package template

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/prepdesk/core"
)

// Stored template content comes in two shapes:
//   - grouped: passages each holding their questions
//     {"passages": [{"ref": "P1", "type": "TEXT", "content": "...", "questions": [...]}]} or a bare list of passages.
//   - flat: the wire shape, one list of questions each carrying the ref (or an inline copy) of its passage
//     {"passages": [...], "questions": [{"content": "...", "passage_ref": "P1", "answers": [...]}]} or a bare list of
//     questions.
// Both converge on []*Passage.

type (
	rawAnswer struct {
		Text      string `json:"text"`
		IsCorrect bool   `json:"is_correct"`
		Order     int    `json:"order"`
	}

	rawQuestion struct {
		ID          string      `json:"id"`
		Content     string      `json:"content"`
		Options     []string    `json:"options,omitempty"`
		Correct     *int        `json:"correct,omitempty"`
		Answers     []rawAnswer `json:"answers,omitempty"`
		Difficulty  string      `json:"difficulty"`
		Explanation string      `json:"explanation,omitempty"`
		PassageRef  string      `json:"passage_ref,omitempty"`
		Passage     *rawPassage `json:"passage,omitempty"`
	}

	rawPassage struct {
		ID           string        `json:"id"`
		Ref          string        `json:"ref"`
		Type         string        `json:"type"`
		Content      string        `json:"content"`
		Text         string        `json:"text,omitempty"`
		PublicID     string        `json:"public_id,omitempty"`
		Instructions string        `json:"instructions,omitempty"`
		Questions    []rawQuestion `json:"questions,omitempty"`
	}

	rawDocument struct {
		Passages  []rawPassage  `json:"passages"`
		Questions []rawQuestion `json:"questions,omitempty"`
	}
)

// ParseContent detects the shape of data and parses it.
func ParseContent(data []byte) ([]*Passage, error) {
	flat, err := isFlat(data)
	if err != nil {
		return nil, err
	}
	if flat {
		return ParseFlat(data)
	}
	return ParseGrouped(data)
}

// ParseGrouped parses passages that hold their own questions.
func ParseGrouped(data []byte) ([]*Passage, error) {
	var raws []rawPassage
	if isList(data) {
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, errors.Wrap(err, "decoding passages")
		}
	} else {
		var doc rawDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, errors.Wrap(err, "decoding content")
		}
		raws = doc.Passages
	}

	passages := make([]*Passage, 0, len(raws))
	refs := make(map[string]bool, len(raws))
	for i, rp := range raws {
		p, err := rp.passage()
		if err != nil {
			return nil, errors.Wrapf(err, "passages[%d]", i)
		}
		if p.Ref != "" {
			if refs[p.Ref] {
				return nil, errors.Wrapf(ErrDuplicateRef, "passages[%d]: ref %q", i, p.Ref)
			}
			refs[p.Ref] = true
		}
		for j, rq := range rp.Questions {
			q, err := rq.question()
			if err != nil {
				return nil, errors.Wrapf(err, "passages[%d].questions[%d]", i, j)
			}
			q.PassageID = p.ID
			p.Questions = append(p.Questions, q)
		}
		passages = append(passages, p)
	}
	return passages, nil
}

// ParseFlat parses a flat list of questions, grouping them under their passages.
// Passages keep the order of the passage list, then the order in which questions first reference them.
func ParseFlat(data []byte) ([]*Passage, error) {
	var doc rawDocument
	if isList(data) {
		if err := json.Unmarshal(data, &doc.Questions); err != nil {
			return nil, errors.Wrap(err, "decoding questions")
		}
	} else if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding content")
	}

	var passages []*Passage
	byRef := make(map[string]*Passage, len(doc.Passages))
	add := func(rp rawPassage) (*Passage, error) {
		p, err := rp.passage()
		if err != nil {
			return nil, err
		}
		if _, dup := byRef[p.Ref]; dup {
			return nil, errors.Wrapf(ErrDuplicateRef, "ref %q", p.Ref)
		}
		byRef[p.Ref] = p
		passages = append(passages, p)
		return p, nil
	}

	for i, rp := range doc.Passages {
		if _, err := add(rp); err != nil {
			return nil, errors.Wrapf(err, "passages[%d]", i)
		}
	}

	for i, rq := range doc.Questions {
		ref := core.CleanString(rq.PassageRef)
		if ref == "" && rq.Passage != nil {
			ref = core.CleanString(rq.Passage.Ref)
		}
		if ref == "" {
			return nil, errors.Errorf("questions[%d]: missing passage ref", i)
		}

		p, ok := byRef[ref]
		if !ok {
			if rq.Passage == nil {
				return nil, errors.Errorf("questions[%d]: unknown passage ref %q", i, ref)
			}
			inline := *rq.Passage
			inline.Ref = ref
			var err error
			if p, err = add(inline); err != nil {
				return nil, errors.Wrapf(err, "questions[%d].passage", i)
			}
		}

		q, err := rq.question()
		if err != nil {
			return nil, errors.Wrapf(err, "questions[%d]", i)
		}
		q.PassageID = p.ID
		p.Questions = append(p.Questions, q)
	}
	return passages, nil
}

func (rp rawPassage) passage() (*Passage, error) {
	ct, err := ParseContentType(rp.Type)
	if err != nil {
		return nil, err
	}
	p := &Passage{
		ID:           rp.ID,
		Ref:          core.CleanString(rp.Ref),
		Type:         ct,
		Instructions: rp.Instructions,
	}
	if p.ID == "" {
		p.ID = newID()
	}

	content := rp.Content
	if content == "" {
		content = rp.Text
	}
	if ct.IsMedia() {
		p.Media.PublicID = core.CleanString(rp.PublicID)
		// older records kept the secure URL in content
		if p.Media.PublicID == "" && isURL(content) {
			p.Media.PublicID = core.CleanString(content)
		}
	} else {
		p.Text = content
	}
	return p, nil
}

func (rq rawQuestion) question() (*Question, error) {
	d, err := ParseDifficulty(rq.Difficulty)
	if err != nil {
		return nil, err
	}
	q := &Question{
		ID:          rq.ID,
		Content:     rq.Content,
		Difficulty:  d,
		Explanation: rq.Explanation,
	}
	if q.ID == "" {
		q.ID = newID()
	}

	if len(rq.Answers) > 0 {
		if err := q.setAnswers(rq.Answers); err != nil {
			return nil, err
		}
		return q, nil
	}

	if len(rq.Options) > NumOptions {
		return nil, errors.Errorf("%d options, at most %d allowed", len(rq.Options), NumOptions)
	}
	copy(q.Options[:], rq.Options)
	if rq.Correct != nil {
		if *rq.Correct < 0 || *rq.Correct >= NumOptions {
			return nil, ErrOptionIndex
		}
		q.Correct = *rq.Correct
	}
	return q, nil
}

// setAnswers lays the answers out by their display order; exactly one must be correct.
func (q *Question) setAnswers(answers []rawAnswer) error {
	if len(answers) > NumOptions {
		return errors.Errorf("%d answers, at most %d allowed", len(answers), NumOptions)
	}
	sorted := append([]rawAnswer(nil), answers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	correct := -1
	for i, a := range sorted {
		q.Options[i] = a.Text
		if a.IsCorrect {
			if correct >= 0 {
				return errors.New("more than one correct answer")
			}
			correct = i
		}
	}
	if correct < 0 {
		return errors.New("no correct answer")
	}
	q.Correct = correct
	return nil
}

func isList(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte("["))
}

// isFlat tells the flat shape from the grouped one.
func isFlat(data []byte) (bool, error) {
	if isList(data) {
		var items []map[string]json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return false, errors.Wrap(err, "decoding content")
		}
		for _, item := range items {
			_, hasRef := item["passage_ref"]
			_, hasPassage := item["passage"]
			if hasRef || hasPassage {
				return true, nil
			}
		}
		return false, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, errors.Wrap(err, "decoding content")
	}
	questions, ok := doc["questions"]
	if !ok {
		return false, nil
	}
	trimmed := bytes.TrimSpace(questions)
	return !bytes.Equal(trimmed, []byte("null")) && !bytes.Equal(trimmed, []byte("[]")), nil
}

func isURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

// MarshalGrouped encodes passages in the grouped shape read by ParseGrouped.
// Staged files are local to the process and are left out: only resolved media survives.
func MarshalGrouped(passages []*Passage) ([]byte, error) {
	doc := rawDocument{Passages: make([]rawPassage, 0, len(passages))}
	for _, p := range passages {
		rp := rawPassage{
			ID:           p.ID,
			Ref:          p.Ref,
			Type:         string(p.Type),
			Instructions: p.Instructions,
		}
		if p.Type.IsMedia() {
			rp.PublicID = p.Media.PublicID
		} else {
			rp.Content = p.Text
		}
		for _, q := range p.Questions {
			correct := q.Correct
			rp.Questions = append(rp.Questions, rawQuestion{
				ID:          q.ID,
				Content:     q.Content,
				Options:     append([]string(nil), q.Options[:]...),
				Correct:     &correct,
				Difficulty:  string(q.Difficulty),
				Explanation: q.Explanation,
			})
		}
		doc.Passages = append(doc.Passages, rp)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "encoding passages")
	}
	return data, nil
}
