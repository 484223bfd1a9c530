package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/prepdesk/core"
	"github.com/trezcool/prepdesk/core/template"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// errorStatus maps the errors of the template package to HTTP statuses. ok is false for unexpected errors.
func errorStatus(err error) (code int, ok bool) {
	var (
		mErr  *template.MediaError
		urErr *template.UploadRejectedError
		unErr *template.UploadNetworkError
		srErr *template.SubmissionRejectedError
		snErr *template.SubmissionNetworkError
	)
	switch {
	case errors.Is(err, template.ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, template.ErrEditorClosed):
		return http.StatusGone, true
	case errors.Is(err, template.ErrSaveInProgress),
		errors.Is(err, template.ErrUnresolvedMedia),
		errors.Is(err, template.ErrDuplicateRef):
		return http.StatusConflict, true
	case errors.Is(err, template.ErrOptionIndex),
		errors.Is(err, template.ErrNotMedia),
		errors.Is(err, template.ErrInvalidValue):
		return http.StatusBadRequest, true
	case errors.As(err, &mErr):
		if mErr.TooLarge {
			return http.StatusRequestEntityTooLarge, true
		}
		return http.StatusUnsupportedMediaType, true
	case errors.As(err, &urErr), errors.As(err, &unErr), errors.As(err, &srErr), errors.As(err, &snErr):
		return http.StatusBadGateway, true
	}
	return 0, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			if c, ok := errorStatus(err); ok {
				code = c
				message = err.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var person core.Person
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				person.ID = claims.Subject
				person.Username = claims.Username
			}
			logger.Error(msg, errors.Wrap(err, msg), person)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
