package template

import (
	"fmt"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/prepdesk/core"
)

var (
	hasQuestionsTag  = "hasquestions"
	hasQuestionsText = "a passage needs at least one question"

	passageTextTag  = "passagetext"
	passageTextText = "a text passage needs content"

	passageMediaTag  = "passagemedia"
	passageMediaText = "an image or audio passage needs a file"

	noPassagesText   = "at least one passage is required"
	duplicateRefText = "ref %q is used by more than one passage"
	partTypeText     = "%s passages are not allowed in %s"
)

// InitValidators registers the validations and translations used by the Gate.
// core.InitValidators must have been called on validate & translator first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(hasQuestionsTag, hasQuestionsValidation)
	validate.RegisterStructValidation(passageStructValidation, Passage{})

	core.RegisterCustomTranslation(validate, translator, hasQuestionsTag, hasQuestionsText)
	core.RegisterCustomTranslation(validate, translator, passageTextTag, passageTextText)
	core.RegisterCustomTranslation(validate, translator, passageMediaTag, passageMediaText)
}

// Gate checks editor state before it is submitted.
type Gate struct {
	validate   *validator.Validate
	translator ut.Translator
}

func NewGate(validate *validator.Validate, translator ut.Translator) *Gate {
	return &Gate{validate: validate, translator: translator}
}

// Check returns nil when the passages can be submitted for the part, or a *core.ValidationError listing every
// violation.
func (g *Gate) Check(kind PartKind, passages []*Passage) error {
	var flds []core.FieldError

	if len(passages) == 0 {
		flds = append(flds, core.FieldError{Field: "passages", Error: noPassagesText})
	}

	refs := make(map[string]int, len(passages))
	for i, p := range passages {
		prefix := fmt.Sprintf("passages[%d]", i)

		if err := g.validate.Struct(p); err != nil {
			vErrs, ok := err.(validator.ValidationErrors)
			if !ok {
				return errors.Wrap(err, "validating passage")
			}
			for _, fe := range vErrs {
				flds = append(flds, core.FieldError{
					Field: prefix + trimNamespace(fe.Namespace()),
					Error: fe.Translate(g.translator),
				})
			}
		}

		if p.Type.Valid() && !kind.Allows(p.Type) {
			flds = append(flds, core.FieldError{
				Field: prefix + ".type",
				Error: fmt.Sprintf(partTypeText, p.Type, kind),
			})
		}

		if ref := core.CleanString(p.Ref); ref != "" {
			refs[ref]++
			if refs[ref] == 2 {
				flds = append(flds, core.FieldError{Field: prefix + ".ref", Error: fmt.Sprintf(duplicateRefText, ref)})
			}
		}
	}

	if len(flds) > 0 {
		return core.NewValidationError(ErrValidationFailure, flds...)
	}
	return nil
}

// trimNamespace drops the struct name: "Passage.questions[0].content" -> ".questions[0].content".
func trimNamespace(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i:]
	}
	return ""
}

// Custom Validators

func hasQuestionsValidation(fl validator.FieldLevel) bool {
	return fl.Field().Len() > 0
}

// passageStructValidation requires the content that matches the passage type.
func passageStructValidation(sl validator.StructLevel) {
	p, ok := sl.Current().Interface().(Passage)
	if !ok {
		return
	}
	switch {
	case p.Type == ContentText && strings.TrimSpace(p.Text) == "":
		sl.ReportError(p.Text, "content", "Text", passageTextTag, "")
	case p.Type.IsMedia() && p.Media.IsEmpty():
		sl.ReportError(p.Media, "media", "Media", passageMediaTag, "")
	}
}
