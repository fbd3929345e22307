// Package form drives the intake screens: entry form with pending-photo
// review, post-submit confirmation, and the terminal closing screen, reachable
// only in that linear order with a reset back to entry. The screens are thin;
// all pipeline behavior lives in the packages they call.
package form

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/jcervantes/foliofotos/internal/util"
	"github.com/jcervantes/foliofotos/pkg/drive"
	"github.com/jcervantes/foliofotos/pkg/pipeline"
	"github.com/jcervantes/foliofotos/pkg/session"
	"github.com/jcervantes/foliofotos/pkg/submit"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	sessionCookie = "foliofotos_session"

	// thumbnail width for pending-photo review images
	thumbnailWidth = 384

	// cap on a single uploaded photo; the remote upload is whole-body with
	// no chunking, so oversized files are refused at the door
	maxPhotoBytes = 25 << 20
)

// Handler is the interface for the intake form's http handlers.
type Handler interface {

	// RegisterRoutes attaches the screen and photo routes to the engine.
	RegisterRoutes(e *gin.Engine)
}

// NewHandler creates a new form handler, returning a pointer to the concrete
// implementation.
func NewHandler(sessions session.Store, orchestrator submit.Orchestrator, normalizer pipeline.Normalizer) Handler {
	return &formHandler{
		sessions:     sessions,
		orchestrator: orchestrator,
		normalizer:   normalizer,

		logger: slog.Default().
			With(slog.String(util.ServiceKey, util.ServiceFolioFotos)).
			With(slog.String(util.PackageKey, util.PackageForm)).
			With(slog.String(util.ComponentKey, util.ComponentFormHandler)),
	}
}

var _ Handler = (*formHandler)(nil)

// formHandler is the concrete implementation of the Handler interface.
type formHandler struct {
	sessions     session.Store
	orchestrator submit.Orchestrator
	normalizer   pipeline.Normalizer

	// latest submission progress keyed by session id, for polling
	progress sync.Map

	logger *slog.Logger
}

// Templates parses the embedded screen templates for the engine.
func Templates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

// RegisterRoutes is the concrete implementation of the interface method.
func (h *formHandler) RegisterRoutes(e *gin.Engine) {

	e.GET("/", h.handleScreen)

	e.POST("/photos/gallery", h.handleAddGallery)
	e.POST("/photos/camera", h.handleAddCamera)
	e.POST("/photos/camera/clear", h.handleClearCamera)
	e.GET("/photos/:index/thumbnail", h.handleThumbnail)
	e.GET("/previews/:index", h.handlePreview)

	e.POST("/submit", h.handleSubmit)
	e.GET("/submit/progress", h.handleProgress)

	e.POST("/reset", h.handleReset)
	e.POST("/finish", h.handleFinish)

	e.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
}

// session is a helper which resolves the caller's session from the cookie,
// creating a fresh one (and setting the cookie) when none exists.
func (h *formHandler) session(c *gin.Context) *session.Session {

	if id, err := c.Cookie(sessionCookie); err == nil {
		if s, ok := h.sessions.Fetch(id); ok {
			return s
		}
	}

	s := h.sessions.Create()
	c.SetCookie(sessionCookie, s.ID, 0, "/", "", false, true)

	return s
}

// handleScreen renders whichever screen the session's flow state selects:
// closing, confirmation, or entry. The linear order of the flow lives
// entirely in these two flags.
func (h *formHandler) handleScreen(c *gin.Context) {

	s := h.session(c)

	if s.IsClosing() {
		c.HTML(http.StatusOK, "closing.html", gin.H{})
		return
	}

	if r := s.Result(); r != nil {
		previews := make([]int, len(r.Previews))
		for i := range previews {
			previews[i] = i
		}

		c.HTML(http.StatusOK, "confirm.html", gin.H{
			"Folio":          r.Folio,
			"Uploaded":       r.Uploaded,
			"Warnings":       r.Warnings,
			"PreviewIndices": previews,
		})
		return
	}

	h.renderEntry(c, s, c.Query("folio"), "", "")
}

// renderEntry is a helper which renders the entry form with its pending
// counts and any error or warning banner.
func (h *formHandler) renderEntry(c *gin.Context, s *session.Session, folioValue, errMsg, warnMsg string) {

	gallery, camera := s.PendingCounts()

	pending := make([]int, gallery+camera)
	for i := range pending {
		pending[i] = i
	}

	status := http.StatusOK
	if errMsg != "" {
		status = http.StatusBadRequest
	}

	c.HTML(status, "entry.html", gin.H{
		"Folio":          folioValue,
		"GalleryCount":   gallery,
		"CameraCount":    camera,
		"PendingIndices": pending,
		"Error":          errMsg,
		"Warning":        warnMsg,
	})
}

// handleAddGallery appends the uploaded gallery files to the session's
// pending collection in selection order.
func (h *formHandler) handleAddGallery(c *gin.Context) {

	s := h.session(c)

	mpForm, err := c.MultipartForm()
	if err != nil {
		h.renderEntry(c, s, c.PostForm("folio"), "No se pudieron leer los archivos seleccionados.", "")
		return
	}

	files := mpForm.File["photos"]
	if len(files) == 0 {
		h.renderEntry(c, s, c.PostForm("folio"), "", "No seleccionaste archivos.")
		return
	}

	for _, fh := range files {
		b, err := readUpload(fh)
		if err != nil {
			h.logger.Error(fmt.Sprintf("failed to read gallery upload %s: %v", fh.Filename, err))
			h.renderEntry(c, s, c.PostForm("folio"), "No se pudo leer una de las fotos.", "")
			return
		}

		s.AddGallery(session.PhotoItem{
			Bytes:  b,
			Mime:   fh.Header.Get("Content-Type"),
			Name:   fh.Filename,
			Source: pipeline.SourceUpload,
		})
	}

	c.Redirect(http.StatusSeeOther, "/")
}

// handleAddCamera appends one live capture to the session's pending camera
// collection in capture order.
func (h *formHandler) handleAddCamera(c *gin.Context) {

	s := h.session(c)

	fh, err := c.FormFile("photo")
	if err != nil {
		h.renderEntry(c, s, c.PostForm("folio"), "", "Primero toma una foto con la cámara.")
		return
	}

	b, err := readUpload(fh)
	if err != nil {
		h.logger.Error(fmt.Sprintf("failed to read camera capture: %v", err))
		h.renderEntry(c, s, c.PostForm("folio"), "No se pudo leer la foto tomada.", "")
		return
	}

	s.AddCamera(session.PhotoItem{
		Bytes:  b,
		Mime:   fh.Header.Get("Content-Type"),
		Name:   fh.Filename,
		Source: pipeline.SourceCamera,
	})

	c.Redirect(http.StatusSeeOther, "/")
}

// handleClearCamera drops the pending camera captures.
func (h *formHandler) handleClearCamera(c *gin.Context) {

	s := h.session(c)
	s.ClearCamera()

	c.Redirect(http.StatusSeeOther, "/")
}

// handleThumbnail serves a review thumbnail for one pending photo: decoded,
// orientation corrected, scaled down, and encoded as jpeg. Photos that cannot
// be decoded get a 204 so the review grid simply shows nothing for them.
func (h *formHandler) handleThumbnail(c *gin.Context) {

	s := h.session(c)

	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil || idx < 0 {
		c.Status(http.StatusNotFound)
		return
	}

	pending := s.Pending()
	if idx >= len(pending) {
		c.Status(http.StatusNotFound)
		return
	}

	item := pending[idx]
	mobile := util.IsMobileUserAgent(c.GetHeader("User-Agent"))

	img := h.normalizer.NormalizeForPreview(item.Bytes, item.Source, mobile)
	if img == nil {
		c.Status(http.StatusNoContent)
		return
	}

	b, err := pipeline.EncodeToJpeg(pipeline.ResizeImageToWidth(img, thumbnailWidth), pipeline.JpegQuality)
	if err != nil {
		h.logger.Error(fmt.Sprintf("failed to encode thumbnail for pending photo %d: %v", idx, err))
		c.Status(http.StatusNoContent)
		return
	}

	c.Data(http.StatusOK, "image/jpeg", b)
}

// handlePreview serves one normalized preview image from the last completed
// submission for the confirmation screen.
func (h *formHandler) handlePreview(c *gin.Context) {

	s := h.session(c)

	r := s.Result()
	if r == nil {
		c.Status(http.StatusNotFound)
		return
	}

	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil || idx < 0 || idx >= len(r.Previews) {
		c.Status(http.StatusNotFound)
		return
	}

	c.Data(http.StatusOK, pipeline.CanonicalMime, r.Previews[idx])
}

// handleSubmit runs the submission for the session's pending photos. Input
// errors re-render the entry form; transport errors surface their diagnostic
// detail; success records the result on the session and shows confirmation.
func (h *formHandler) handleSubmit(c *gin.Context) {

	s := h.session(c)

	rawFolio := c.PostForm("folio")
	mobile := util.IsMobileUserAgent(c.GetHeader("User-Agent"))

	items := s.Pending()

	outcome, err := h.orchestrator.Submit(c.Request.Context(), rawFolio, items, mobile, func(p submit.Progress) {
		h.progress.Store(s.ID, p)
	})
	if err != nil {
		h.progress.Delete(s.ID)

		switch {
		case errors.Is(err, submit.ErrInvalidFolio):
			h.renderEntry(c, s, rawFolio, "Formato de folio inválido. Debe ser: 251215-0FF480 (6 dígitos, guion, 6 alfanuméricos).", "")
		case errors.Is(err, submit.ErrNoPhotos):
			h.renderEntry(c, s, rawFolio, "", "No seleccionaste fotos de galería ni agregaste fotos tomadas.")
		default:
			h.logger.Error(fmt.Sprintf("submission failed for session %s: %v", s.ID, err))

			detail := "Error inesperado."
			var remote *drive.ErrorRemote
			if errors.As(err, &remote) {
				detail = remote.Error()
			}
			h.renderEntry(c, s, rawFolio, fmt.Sprintf("Error subiendo fotos. %s", detail), "")
		}
		return
	}

	s.Complete(&session.Result{
		Folio:    outcome.Folio,
		Uploaded: outcome.Uploaded,
		Previews: outcome.Previews,
		Warnings: outcome.Warnings,
	})

	c.Redirect(http.StatusSeeOther, "/")
}

// handleProgress reports the latest progress of the session's submission.
func (h *formHandler) handleProgress(c *gin.Context) {

	s := h.session(c)

	p, ok := h.progress.Load(s.ID)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"state": string(submit.StateIdle), "ratio": 0})
		return
	}

	prog := p.(submit.Progress)
	c.JSON(http.StatusOK, gin.H{
		"state": string(prog.State),
		"ratio": prog.Ratio,
	})
}

// handleReset returns the session to the entry screen from either
// confirmation screen.
func (h *formHandler) handleReset(c *gin.Context) {

	s := h.session(c)
	s.Reset()
	h.progress.Delete(s.ID)

	c.Redirect(http.StatusSeeOther, "/")
}

// handleFinish advances from the confirmation screen to the terminal screen.
func (h *formHandler) handleFinish(c *gin.Context) {

	s := h.session(c)
	s.Close()

	c.Redirect(http.StatusSeeOther, "/")
}

// readUpload is a helper which reads one multipart file fully into memory,
// enforcing the size cap.
func readUpload(fh *multipart.FileHeader) ([]byte, error) {

	if fh.Size > maxPhotoBytes {
		return nil, fmt.Errorf("file exceeds %d byte limit", maxPhotoBytes)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	b, err := io.ReadAll(io.LimitReader(f, maxPhotoBytes+1))
	if err != nil {
		return nil, err
	}

	if int64(len(b)) > maxPhotoBytes {
		return nil, fmt.Errorf("file exceeds %d byte limit", maxPhotoBytes)
	}

	return b, nil
}
