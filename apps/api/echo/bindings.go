package echoapi

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/prepdesk/core"
	"github.com/trezcool/prepdesk/core/template"
)

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	// OpenEditorRequest opens an editor on a part template. Content, when set, is hydrated (grouped or flat shape);
	// otherwise Resume loads the stored draft if there is one.
	OpenEditorRequest struct {
		PartTemplateID string          `json:"part_template_id" validate:"notblank"`
		Part           int             `json:"part" validate:"required,min=1,max=7"`
		Resume         bool            `json:"resume"`
		Content        json.RawMessage `json:"content"`
	}

	AddPassageRequest struct {
		Type template.ContentType `json:"type" validate:"required,oneof=TEXT IMAGE AUDIO"`
	}

	SetOptionRequest struct {
		Text string `json:"text"`
	}

	EditorView struct {
		ID              string              `json:"id"`
		PartTemplateID  string              `json:"part_template_id"`
		Part            template.Part       `json:"part"`
		State           template.SaveState  `json:"state"`
		Passages        []*template.Passage `json:"passages"`
		QuestionNumbers map[string]int      `json:"question_numbers"`
		Resumed         bool                `json:"resumed,omitempty"`
	}

	EditorSummary struct {
		ID             string             `json:"id"`
		PartTemplateID string             `json:"part_template_id"`
		Part           template.PartKind  `json:"part"`
		State          template.SaveState `json:"state"`
		Passages       int                `json:"passages"`
	}

	SaveResponse struct {
		Notification core.Notification `json:"notification"`
		Editor       EditorView        `json:"editor"`
	}

	DraftView struct {
		PartTemplateID string              `json:"part_template_id"`
		Part           template.PartKind   `json:"part"`
		SavedAt        time.Time           `json:"saved_at"`
		Passages       []*template.Passage `json:"passages,omitempty"`
	}

	ValidResponse struct {
		Valid bool `json:"valid"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (req *OpenEditorRequest) Validate(validate *validator.Validate) error {
	req.PartTemplateID = core.CleanString(req.PartTemplateID)
	if string(req.Content) == "null" {
		req.Content = nil
	}
	return validate.Struct(req)
}

func (ar *AddPassageRequest) Validate(validate *validator.Validate) error {
	ar.Type = template.ContentType(core.CleanString(string(ar.Type)))
	return validate.Struct(ar)
}

func newEditorView(e *template.Editor) EditorView {
	passages := e.Passages()
	if passages == nil {
		passages = []*template.Passage{}
	}
	return EditorView{
		ID:              e.ID,
		PartTemplateID:  e.PartTemplateID,
		Part:            e.Kind.Part(),
		State:           e.State(),
		Passages:        passages,
		QuestionNumbers: template.QuestionNumbers(passages),
	}
}

func newEditorSummary(e *template.Editor) EditorSummary {
	return EditorSummary{
		ID:             e.ID,
		PartTemplateID: e.PartTemplateID,
		Part:           e.Kind,
		State:          e.State(),
		Passages:       len(e.Passages()),
	}
}

func newDraftView(d template.Draft, passages []*template.Passage) DraftView {
	return DraftView{
		PartTemplateID: d.PartTemplateID,
		Part:           d.Part,
		SavedAt:        d.SavedAt,
		Passages:       passages,
	}
}
