package template

import "github.com/pkg/errors"

type (
	// ImportRequest is the body of the enqueue-import endpoint.
	ImportRequest struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Status      string  `json:"status"`
		Content     Content `json:"content"`
	}

	Content struct {
		Passages  []PassagePayload  `json:"passages"`
		Questions []QuestionPayload `json:"questions"`
	}

	PassagePayload struct {
		Ref          string      `json:"ref"`
		Type         ContentType `json:"type"`
		Content      string      `json:"content"`
		PublicID     string      `json:"public_id"`
		Instructions string      `json:"instructions"`
	}

	QuestionPayload struct {
		Content    string          `json:"content"`
		Difficulty Difficulty      `json:"difficulty"`
		Part       PartKind        `json:"part"`
		PassageRef string          `json:"passage_ref"`
		Answers    []AnswerPayload `json:"answers"`
	}

	AnswerPayload struct {
		Text      string `json:"text"`
		IsCorrect bool   `json:"is_correct"`
		Order     int    `json:"order"`
	}
)

// Assemble flattens the passages into the wire content of a part: passages in order, then every question in
// passage order.
// Every media passage must have been uploaded: a passage still holding only a staged file yields ErrUnresolvedMedia.
func Assemble(kind PartKind, passages []*Passage) (Content, error) {
	content := Content{
		Passages:  make([]PassagePayload, 0, len(passages)),
		Questions: make([]QuestionPayload, 0, countQuestions(passages)),
	}
	for _, p := range passages {
		pp := PassagePayload{
			Ref:          p.Ref,
			Type:         p.Type,
			Instructions: p.Instructions,
		}
		if p.Type.IsMedia() {
			if !p.Media.IsResolved() {
				return Content{}, errors.Wrapf(ErrUnresolvedMedia, "passage %q", p.Ref)
			}
			pp.PublicID = p.Media.PublicID
		} else {
			pp.Content = p.Text
		}
		content.Passages = append(content.Passages, pp)

		for _, q := range p.Questions {
			content.Questions = append(content.Questions, QuestionPayload{
				Content:    q.Content,
				Difficulty: q.Difficulty,
				Part:       kind,
				PassageRef: p.Ref,
				Answers:    answers(q),
			})
		}
	}
	return content, nil
}

func answers(q *Question) []AnswerPayload {
	ans := make([]AnswerPayload, NumOptions)
	for i, opt := range q.Options {
		ans[i] = AnswerPayload{Text: opt, IsCorrect: q.IsCorrect(i), Order: i + 1}
	}
	return ans
}

// QuestionNumbers numbers the questions across passages, starting at 1.
// The numbers are for display only and are not sent over the wire.
func QuestionNumbers(passages []*Passage) map[string]int {
	nums := make(map[string]int, countQuestions(passages))
	offset := 0
	for _, p := range passages {
		for i, q := range p.Questions {
			nums[q.ID] = offset + i + 1
		}
		offset += len(p.Questions)
	}
	return nums
}

func countQuestions(passages []*Passage) int {
	var n int
	for _, p := range passages {
		n += len(p.Questions)
	}
	return n
}
