package backend

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/memories/internal/backend/database"
	"github.com/jo-hoe/memories/internal/backend/imagecodec"
	"github.com/jo-hoe/memories/internal/core"
)

const (
	uploadFieldName = "image"
	// maxFilesPerRequest bounds a batch upload, each file is additionally capped by maxUploadBytes
	maxFilesPerRequest = 20
	immutableCaching   = "public, max-age=31536000, immutable"
)

type APIService struct {
	coreService    *core.CoreService
	maxUploadBytes int64
}

type createMemoryRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

type photoResponse struct {
	*database.Photo
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

type memoryResponse struct {
	*database.Memory
	Photos []photoResponse `json:"photos"`
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		coreService:    coreService,
		maxUploadBytes: config.Processing.MaxUploadBytes,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.GET(probePath, s.probeHandler)

	api := e.Group("/api")
	api.POST("/users/:userID/memories", s.createMemoryHandler)
	api.GET("/users/:userID/memories", s.listMemoriesHandler)

	api.GET("/memories/:memoryID", s.getMemoryHandler)
	api.DELETE("/memories/:memoryID", s.deleteMemoryHandler)
	api.POST("/memories/:memoryID/photos", s.uploadPhotosHandler, sizeLimit(s.maxUploadBytes*maxFilesPerRequest))
	api.GET("/memories/:memoryID/photos", s.listPhotosHandler)

	api.GET("/photos/:photoID", s.getPhotoHandler)
	api.GET("/photos/:photoID/thumbnail", s.getThumbnailHandler)
	api.POST("/photos/:photoID/move", s.movePhotoHandler)
	api.DELETE("/photos/:photoID", s.deletePhotoHandler)
}

func (s *APIService) probeHandler(c echo.Context) error {
	if err := s.coreService.Ping(c.Request().Context()); err != nil {
		slog.Error("probe failed", "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
	}
	return c.String(http.StatusOK, "ok")
}

func (s *APIService) createMemoryHandler(c echo.Context) error {
	var req createMemoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	memory, err := s.coreService.CreateMemory(c.Request().Context(), c.Param("userID"), req.Title, req.Description)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, memory)
}

func (s *APIService) listMemoriesHandler(c echo.Context) error {
	memories, err := s.coreService.ListMemories(c.Request().Context(), c.Param("userID"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, memories)
}

func (s *APIService) getMemoryHandler(c echo.Context) error {
	ctx := c.Request().Context()
	memory, err := s.coreService.GetMemory(ctx, c.Param("memoryID"))
	if err != nil {
		return toHTTPError(err)
	}
	photos, err := s.coreService.ListPhotos(ctx, memory.ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, memoryResponse{Memory: memory, Photos: toPhotoResponses(photos)})
}

func (s *APIService) deleteMemoryHandler(c echo.Context) error {
	if err := s.coreService.DeleteMemory(c.Request().Context(), c.Param("memoryID")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) uploadPhotosHandler(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
		}
		return echo.NewHTTPError(http.StatusBadRequest, "expected multipart form data")
	}
	defer func() {
		_ = form.RemoveAll()
	}()

	files := form.File[uploadFieldName]
	if len(files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files in form field \""+uploadFieldName+"\"")
	}
	if len(files) > maxFilesPerRequest {
		return echo.NewHTTPError(http.StatusBadRequest, "too many files in one request")
	}

	uploads := make([]core.Upload, 0, len(files))
	for _, fh := range files {
		uploads = append(uploads, core.Upload{
			Filename: fh.Filename,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}

	photos, err := s.coreService.AddPhotos(c.Request().Context(), c.Param("memoryID"), uploads)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, toPhotoResponses(photos))
}

func (s *APIService) listPhotosHandler(c echo.Context) error {
	photos, err := s.coreService.ListPhotos(c.Request().Context(), c.Param("memoryID"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toPhotoResponses(photos))
}

func (s *APIService) getPhotoHandler(c echo.Context) error {
	data, _, err := s.coreService.OpenPhoto(c.Request().Context(), c.Param("photoID"))
	if err != nil {
		return toHTTPError(err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, immutableCaching)
	return c.Blob(http.StatusOK, imagecodec.WebPContentType, data)
}

func (s *APIService) getThumbnailHandler(c echo.Context) error {
	data, err := s.coreService.Thumbnail(c.Request().Context(), c.Param("photoID"))
	if err != nil {
		return toHTTPError(err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, immutableCaching)
	return c.Blob(http.StatusOK, imagecodec.WebPContentType, data)
}

func (s *APIService) movePhotoHandler(c echo.Context) error {
	photos, err := s.coreService.MovePhoto(c.Request().Context(), c.Param("photoID"), c.QueryParam("dir"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toPhotoResponses(photos))
}

func (s *APIService) deletePhotoHandler(c echo.Context) error {
	if err := s.coreService.DeletePhoto(c.Request().Context(), c.Param("photoID")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func toPhotoResponses(photos []*database.Photo) []photoResponse {
	responses := make([]photoResponse, 0, len(photos))
	for _, photo := range photos {
		responses = append(responses, photoResponse{
			Photo:        photo,
			URL:          "/api/photos/" + photo.ID,
			ThumbnailURL: "/api/photos/" + photo.ID + "/thumbnail",
		})
	}
	return responses
}

// toHTTPError maps core errors to HTTP status codes
func toHTTPError(err error) error {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, core.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, core.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrTooLarge), errors.As(err, &maxBytesErr):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, core.ErrUnsupportedMediaType):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	default:
		return err
	}
}
