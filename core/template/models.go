package template

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NumOptions is the number of answer options of every question.
const NumOptions = 4

type PartKind int

// Parts of the test, in order.
const (
	PartPhotographs PartKind = iota + 1
	PartQuestionResponse
	PartConversations
	PartTalks
	PartIncompleteSentences
	PartTextCompletion
	PartReadingComprehension
)

type ContentType string

const (
	ContentText  ContentType = "TEXT"
	ContentImage ContentType = "IMAGE"
	ContentAudio ContentType = "AUDIO"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

type (
	// PartConfig is the per-part configuration blob.
	PartConfig map[string]interface{}

	Part struct {
		Kind         PartKind      `json:"kind"`
		Name         string        `json:"name"`
		Section      string        `json:"section"`
		ContentTypes []ContentType `json:"content_types"`
		Config       PartConfig    `json:"config"`
	}
)

var Parts = []Part{
	{
		Kind: PartPhotographs, Name: "Photographs", Section: "listening",
		ContentTypes: []ContentType{ContentImage, ContentAudio},
		Config:       PartConfig{"questions_per_passage": 1, "options_read_aloud": true},
	},
	{
		Kind: PartQuestionResponse, Name: "Question-Response", Section: "listening",
		ContentTypes: []ContentType{ContentAudio},
		Config:       PartConfig{"questions_per_passage": 1, "options_read_aloud": true},
	},
	{
		Kind: PartConversations, Name: "Conversations", Section: "listening",
		ContentTypes: []ContentType{ContentAudio, ContentImage},
		Config:       PartConfig{"questions_per_passage": 3},
	},
	{
		Kind: PartTalks, Name: "Talks", Section: "listening",
		ContentTypes: []ContentType{ContentAudio, ContentImage},
		Config:       PartConfig{"questions_per_passage": 3},
	},
	{
		Kind: PartIncompleteSentences, Name: "Incomplete Sentences", Section: "reading",
		ContentTypes: []ContentType{ContentText},
		Config:       PartConfig{"questions_per_passage": 1},
	},
	{
		Kind: PartTextCompletion, Name: "Text Completion", Section: "reading",
		ContentTypes: []ContentType{ContentText, ContentImage},
		Config:       PartConfig{"questions_per_passage": 4},
	},
	{
		Kind: PartReadingComprehension, Name: "Reading Comprehension", Section: "reading",
		ContentTypes: []ContentType{ContentText, ContentImage},
		Config:       PartConfig{"min_questions_per_passage": 2, "max_questions_per_passage": 5},
	},
}

func (k PartKind) Valid() bool { return k >= PartPhotographs && k <= PartReadingComprehension }

// Part returns the definition of the part kind. Invalid kinds yield a zero Part.
func (k PartKind) Part() Part {
	if !k.Valid() {
		return Part{}
	}
	return Parts[k-1]
}

func (k PartKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Part(%d)", int(k))
	}
	return fmt.Sprintf("Part %d: %s", int(k), k.Part().Name)
}

// Allows reports whether passages of the given content type belong in this part.
func (k PartKind) Allows(ct ContentType) bool {
	for _, allowed := range k.Part().ContentTypes {
		if allowed == ct {
			return true
		}
	}
	return false
}

func (ct ContentType) Valid() bool {
	switch ct {
	case ContentText, ContentImage, ContentAudio:
		return true
	}
	return false
}

func (ct ContentType) IsMedia() bool { return ct == ContentImage || ct == ContentAudio }

// ParseContentType is case-insensitive.
func ParseContentType(s string) (ContentType, error) {
	ct := ContentType(strings.ToUpper(strings.TrimSpace(s)))
	if !ct.Valid() {
		return "", fmt.Errorf("unknown content type %q", s)
	}
	return ct, nil
}

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// ParseDifficulty is case-insensitive; an empty string yields EASY.
func ParseDifficulty(s string) (Difficulty, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DifficultyEasy, nil
	}
	d := Difficulty(strings.ToUpper(s))
	if !d.Valid() {
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
	return d, nil
}

// Media is the content of an IMAGE or AUDIO passage: a staged local file, a resolved remote identifier, or both while
// an upload is pending.
type Media struct {
	Preview  *Preview `json:"preview,omitempty"`
	PublicID string   `json:"public_id,omitempty"`
}

func (m Media) IsStaged() bool   { return m.Preview != nil }
func (m Media) IsResolved() bool { return m.PublicID != "" }
func (m Media) IsEmpty() bool    { return !m.IsStaged() && !m.IsResolved() }

// Passage and Question nodes are shared between editor snapshots: they must be treated as read-only.
type (
	Passage struct {
		ID           string      `json:"id" validate:"-"`
		Ref          string      `json:"ref" validate:"notblank"`
		Type         ContentType `json:"type" validate:"required,oneof=TEXT IMAGE AUDIO"`
		Text         string      `json:"text"`
		Media        Media       `json:"media" validate:"-"`
		Instructions string      `json:"instructions"`
		Questions    []*Question `json:"questions" validate:"hasquestions,dive"`
	}

	Question struct {
		ID          string             `json:"id" validate:"-"`
		PassageID   string             `json:"passage_id" validate:"-"`
		Content     string             `json:"content" validate:"notblank"`
		Options     [NumOptions]string `json:"options" validate:"dive,notblank"`
		Correct     int                `json:"correct" validate:"min=0,max=3"`
		Difficulty  Difficulty         `json:"difficulty" validate:"required,oneof=EASY MEDIUM HARD"`
		Explanation string             `json:"explanation"`
	}
)

// clone returns a shallow copy: the Questions slice is copied, the question nodes are shared.
func (p *Passage) clone() *Passage {
	cp := *p
	cp.Questions = append([]*Question(nil), p.Questions...)
	return &cp
}

func (p *Passage) questionIndex(id string) int {
	for i, q := range p.Questions {
		if q.ID == id {
			return i
		}
	}
	return -1
}

func (q *Question) clone() *Question {
	cp := *q
	return &cp
}

// IsCorrect reports whether the option at idx is the designated correct option.
func (q *Question) IsCorrect(idx int) bool { return q.Correct == idx }

func newID() string { return uuid.New().String() }

// newRef generates a passage reference, e.g. "P3-1a2b3c4d".
func newRef(kind PartKind) string {
	return fmt.Sprintf("P%d-%s", int(kind), strings.SplitN(uuid.New().String(), "-", 2)[0])
}

func newQuestion(passageID string) *Question {
	return &Question{
		ID:         newID(),
		PassageID:  passageID,
		Difficulty: DifficultyEasy,
	}
}
