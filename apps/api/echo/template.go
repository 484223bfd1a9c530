package echoapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/prepdesk/core"
	"github.com/trezcool/prepdesk/core/template"
	notifysvc "github.com/trezcool/prepdesk/services/notify"
)

type (
	templateApiDeps struct {
		conf     *core.Config
		svc      *template.Service
		previews *template.Previews
		editors  *editorRegistry
		notes    *notifysvc.Recorder
		validate *validator.Validate
		logger   core.Logger
	}

	templateApi struct {
		templateApiDeps
		limits template.MediaLimits
	}
)

func registerTemplateAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps templateApiDeps) {
	api := templateApi{
		templateApiDeps: deps,
		limits: template.MediaLimits{
			MaxImageBytes: deps.conf.Uploads.MaxImageBytes,
			MaxAudioBytes: deps.conf.Uploads.MaxAudioBytes,
		},
	}

	ag := g.Group("", jwt)
	ag.GET("/parts", api.queryParts)
	ag.GET("/notifications", api.queryNotifications)
	ag.GET("/templates/:tid/saves", api.querySaves)

	ag.POST("/editors", api.openEditor)
	ag.GET("/editors", api.queryEditors)

	// detail endpoints
	eg := ag.Group("/editors/:id", editorMiddleware(api.editors))
	eg.GET("", api.retrieveEditor)
	eg.DELETE("", api.closeEditor)

	eg.POST("/passages", api.addPassage)
	eg.PATCH("/passages/:pid", api.updatePassage)
	eg.DELETE("/passages/:pid", api.removePassage)
	eg.PUT("/passages/:pid/media", api.stageMedia, middleware.BodyLimit(api.bodyLimit()))
	eg.DELETE("/passages/:pid/media", api.clearMedia)
	eg.GET("/previews/:previewID", api.servePreview)

	eg.POST("/passages/:pid/questions", api.addQuestion)
	eg.PATCH("/passages/:pid/questions/:qid", api.updateQuestion)
	eg.DELETE("/passages/:pid/questions/:qid", api.removeQuestion)
	eg.PUT("/passages/:pid/questions/:qid/options/:idx", api.setOption)

	eg.POST("/validate", api.validateEditor)
	eg.POST("/preview-payload", api.previewPayload)
	eg.POST("/save", api.save)

	eg.POST("/draft", api.saveDraft)
	eg.GET("/draft", api.retrieveDraft)
	eg.DELETE("/draft", api.deleteDraft)
}

// bodyLimit leaves room for the multipart envelope around the largest accepted file.
func (api *templateApi) bodyLimit() string {
	max := api.limits.MaxImageBytes
	if api.limits.MaxAudioBytes > max {
		max = api.limits.MaxAudioBytes
	}
	return fmt.Sprintf("%dK", max>>10+1024)
}

// Handlers

func (api *templateApi) queryParts(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, template.Parts)
}

func (api *templateApi) queryNotifications(ctx echo.Context) error {
	notes := []core.Notification{}
	if api.notes != nil {
		notes = append(notes, api.notes.All()...)
	}
	return ctx.JSON(http.StatusOK, notes)
}

func (api *templateApi) querySaves(ctx echo.Context) error {
	entries, err := api.svc.History(ctx.Request().Context(), ctx.Param("tid"))
	if err != nil {
		return errors.Wrap(err, "querying save log")
	}
	if entries == nil {
		entries = []template.SaveEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *templateApi) openEditor(ctx echo.Context) error {
	var data OpenEditorRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OpenEditorRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	kind := template.PartKind(data.Part)
	var (
		passages []*template.Passage
		resumed  bool
		err      error
	)
	switch {
	case len(data.Content) > 0:
		if passages, err = template.ParseContent(data.Content); err != nil {
			return core.NewValidationError(err, core.FieldError{Field: "content", Error: err.Error()})
		}
	case data.Resume:
		var d template.Draft
		d, passages, err = api.svc.LoadDraft(ctx.Request().Context(), data.PartTemplateID)
		switch {
		case errors.Is(err, template.ErrDraftNotFound):
		case err != nil:
			return errors.Wrap(err, "loading draft")
		case d.Part != kind:
			return core.NewValidationError(nil, core.FieldError{
				Field: "part",
				Error: fmt.Sprintf("the stored draft belongs to %s", d.Part),
			})
		default:
			resumed = true
		}
	}

	e := template.NewEditor(data.PartTemplateID, kind)
	if err = e.Hydrate(passages); err != nil {
		e.Close()
		return errors.Wrap(err, "hydrating editor")
	}
	api.editors.add(e)
	api.logger.Info("editor opened", e.LogFields())

	view := newEditorView(e)
	view.Resumed = resumed
	return ctx.JSON(http.StatusCreated, view)
}

func (api *templateApi) queryEditors(ctx echo.Context) error {
	editors := api.editors.list()
	summaries := make([]EditorSummary, 0, len(editors))
	for _, e := range editors {
		summaries = append(summaries, newEditorSummary(e))
	}
	return ctx.JSON(http.StatusOK, summaries)
}

func (api *templateApi) retrieveEditor(ctx echo.Context) error {
	e, err := getContextEditor(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newEditorView(e))
}

func (api *templateApi) closeEditor(ctx echo.Context) error {
	if err := api.editors.close(ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *templateApi) addPassage(ctx echo.Context) error {
	e, err := getContextEditor(ctx)
	if err != nil {
		return err
	}
	var data AddPassageRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddPassageRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	p, err := e.AddPassage(data.Type)
	if err != nil {
		return errors.Wrap(err, "adding passage")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *templateApi) updatePassage(ctx echo.Context) error {
	e, err := getContextEditor(ctx)
	if err != nil {
		return err
	}
	var data template.PassageUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PassageUpdate")
	}

	p, err := e.UpdatePassage(ctx.Param("pid"), data)
	if err != nil {
		return errors.Wrap(err, "updating passage")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *templateApi) removePassage(ctx echo.Context) error {
	e, err := getContextEditor(ctx)
	if err != nil {
		return err
	}
	if err = e.RemovePassage(ctx.Param("pid")); err != nil {
		return errors.Wrap(err, "removing passage")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// stageMedia stages the multipart "file" as the media of a passage, replacing the file staged before.
func (api *templateApi) stageMedia(ctx echo.Context) error {
	e, err := getContextEditor(ctx)
	if err != nil {
		return err
	}
	p, err := e.Passage(ctx.Param("pid"))
	if err != nil {
		return err
	}
	if !p.Type.IsMedia() {
		return template.ErrNotMedia
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "file", Error: "this field is required"})
	}
	src, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer func() { _ = src.Close() }()

	pv, err := api.previews.Stage(src, fh.Filename)
	if err != nil {
		return errors.Wrap(err, "staging file")
	}
	if err = template.CheckMedia(p.Type, pv.MIMEType, pv.Size, api.limits); err != nil {
		_ = pv.Release()
		return err
	}
	if p, err = e.StageMedia(p.ID, pv); err != nil {
		_ = pv.Release()
		return errors.Wrap(err, "staging media")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *templateApi) clearMedia(ctx echo.Context) error {
	e, err := getContextEditor(ctx)
	if err != nil {
		return err
	}
	p, err := e.ClearMedia(ctx.Param("pid"))
	if err != nil {
		return errors.Wrap(err, "clearing media")
	}
	return ctx.JSON(http.StatusOK, p)
}

// servePreview streams a file staged in the editor.
func (api *templateApi) servePreview(ctx echo.Context) error {
	e, err := getContextEditor(ctx)
	if err != nil {
		return err
	}

	id := ctx.Param("previewID")
	for _, p := range e.Passages() {
		pv := p.Media.Preview
		if pv == nil || pv.ID != id {
			continue
		}
		f, err := pv.Open()
		if errors.Is(err, template.ErrPreviewReleased) {
			break
		}
		if err != nil {
			return errors.Wrap(err, "opening preview")
		}
		defer func() { _ = f.Close() }()
		ctx.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(pv.Size, 10))
		return ctx.Stream(http.StatusOK, pv.MIMEType, f)
	}
	return errHttpNotFound
}

func (api *templateApi) addQuestion(ctx echo.Context) error {
	e, err := getContextEditor(ctx)
	if err != nil {
		return err
	}
	q, err := e.AddQuestion(ctx.Param("pid"))
	if err != nil {
		return errors.Wrap(err, "adding question")
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *templateApi) updateQuestion(ctx echo.Context) error {
	e, err := getContextEditor(ctx)
	if err != nil {
		return err
	}
	var data template.QuestionUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuestionUpdate")
	}

	q, err := e.UpdateQuestion(ctx.Param("pid"), ctx.Param("qid"), data)
	if err != nil {
		return errors.Wrap(err, "updating question")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *templateApi) removeQuestion(ctx echo.Context) error {
	e, err := getContextEditor(ctx)
	if err != nil {
		return err
	}
	if err = e.RemoveQuestion(ctx.Param("pid"), ctx.Param("qid")); err != nil {
		return errors.Wrap(err, "removing question")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *templateApi) setOption(ctx echo.Context) error {
	e, err := getContextEditor(ctx)
	if err != nil {
		return err
	}
	idx, err := strconv.Atoi(ctx.Param("idx"))
	if err != nil {
		return template.ErrOptionIndex
	}
	var data SetOptionRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetOptionRequest")
	}

	q, err := e.SetOption(ctx.Param("pid"), ctx.Param("qid"), idx, data.Text)
	if err != nil {
		return errors.Wrap(err, "setting option")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *templateApi) validateEditor(ctx echo.Context) error {
	e, err := getContextEditor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Validate(e); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ValidResponse{Valid: true})
}

func (api *templateApi) bindMeta(ctx echo.Context) (template.TemplateMeta, error) {
	var meta template.TemplateMeta
	if ctx.Request().ContentLength == 0 {
		return meta, nil
	}
	if err := ctx.Bind(&meta); err != nil {
		return meta, errors.Wrap(err, "binding to TemplateMeta")
	}
	return meta, nil
}

func (api *templateApi) previewPayload(ctx echo.Context) error {
	e, err := getContextEditor(ctx)
	if err != nil {
		return err
	}
	meta, err := api.bindMeta(ctx)
	if err != nil {
		return err
	}
	req, err := api.svc.Payload(e, meta)
	if err != nil {
		return errors.Wrap(err, "assembling payload")
	}
	return ctx.JSON(http.StatusOK, req)
}

// save runs a full save cycle. Its outcome is also pushed to the notifiers.
func (api *templateApi) save(ctx echo.Context) error {
	e, err := getContextEditor(ctx)
	if err != nil {
		return err
	}
	meta, err := api.bindMeta(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Save(e, meta); err != nil {
		return err
	}

	passages := e.Passages()
	return ctx.JSON(http.StatusOK, SaveResponse{
		Notification: template.Notification(nil, len(passages), len(template.QuestionNumbers(passages))),
		Editor:       newEditorView(e),
	})
}

func (api *templateApi) saveDraft(ctx echo.Context) error {
	e, err := getContextEditor(ctx)
	if err != nil {
		return err
	}
	d, err := api.svc.SaveDraft(ctx.Request().Context(), e)
	if err != nil {
		return errors.Wrap(err, "saving draft")
	}
	return ctx.JSON(http.StatusCreated, newDraftView(d, nil))
}

func (api *templateApi) retrieveDraft(ctx echo.Context) error {
	e, err := getContextEditor(ctx)
	if err != nil {
		return err
	}
	d, passages, err := api.svc.LoadDraft(ctx.Request().Context(), e.PartTemplateID)
	if err != nil {
		return errors.Wrap(err, "loading draft")
	}
	return ctx.JSON(http.StatusOK, newDraftView(d, passages))
}

func (api *templateApi) deleteDraft(ctx echo.Context) error {
	e, err := getContextEditor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteDraft(ctx.Request().Context(), e.PartTemplateID); err != nil {
		return errors.Wrap(err, "deleting draft")
	}
	return ctx.NoContent(http.StatusNoContent)
}
