package echoapi

import (
	"mime"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	storagesvc "github.com/trezcool/darasa/services/storage"
)

// maxUploadSize bounds the body of a signed upload.
const maxUploadSize = 50 << 20

type fileApi struct {
	store *storagesvc.LocalStore
}

// registerFileAPI serves the local file store behind signed URLs.
func registerFileAPI(app *echo.Echo, store *storagesvc.LocalStore) {
	api := fileApi{store: store}

	fg := app.Group("/files", api.verify)
	fg.GET("/*", api.download)
	fg.PUT("/*", api.upload)
}

func (api *fileApi) verify(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		err := api.store.Verify(ctx.Request().Method, ctx.Param("*"), ctx.QueryParams())
		switch errors.Cause(err) {
		case nil:
			return next(ctx)
		case storagesvc.ErrInvalidSignature, storagesvc.ErrURLExpired:
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		default:
			return err
		}
	}
}

func (api *fileApi) download(ctx echo.Context) error {
	fp, err := api.store.Path(ctx.Param("*"))
	if err != nil {
		if core.IsNotFound(err) || errors.Cause(err) == storagesvc.ErrInvalidKey {
			return errHttpNotFound
		}
		return errors.Wrap(err, "locating file")
	}

	if filename := ctx.QueryParam("filename"); filename != "" {
		return ctx.Attachment(fp, filename)
	}
	return ctx.File(fp)
}

func (api *fileApi) upload(ctx echo.Context) error {
	key := ctx.Param("*")
	body := http.MaxBytesReader(ctx.Response(), ctx.Request().Body, maxUploadSize)
	if err := api.store.Save(key, body); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Cause(err) == storagesvc.ErrInvalidKey:
			return errHttpForbidden
		case errors.As(err, &tooLarge):
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
		}
		return errors.Wrap(err, "saving file")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{
		"file_key":     key,
		"content_type": mime.TypeByExtension(path.Ext(key)),
	})
}
