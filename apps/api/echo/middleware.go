package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/prepdesk/core/template"
)

const contextEditorKey = "editor"

var errEditorNotFoundInCtx = errors.New("editor not found in echo.Context")

// editorMiddleware loads the editor named by the ":id" path param into the context.
func editorMiddleware(editors *editorRegistry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			e, err := editors.get(ctx.Param("id"))
			if err != nil {
				return err
			}
			ctx.Set(contextEditorKey, e)
			return next(ctx)
		}
	}
}

func getContextEditor(ctx echo.Context) (*template.Editor, error) {
	if e, ok := ctx.Get(contextEditorKey).(*template.Editor); ok {
		return e, nil
	}
	return nil, errEditorNotFoundInCtx
}
