package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cleaning-schedule-backend/internal/apperr"
	"cleaning-schedule-backend/internal/importer"
)

// multipartSlack covers the multipart framing around the file itself.
const multipartSlack = 1 << 20

// PostImport handles POST /api/schedule/imports (multipart field "file").
func (h *Handler) PostImport(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartSlack)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(c, err)
			return
		}
		h.respondError(c, fmt.Errorf("%w: multipart field \"file\" is required", apperr.ErrInput))
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", apperr.ErrInput, err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", apperr.ErrInput, err))
		return
	}

	res, err := h.importer.Process(c.Request.Context(), importer.Request{
		Data:     data,
		Filename: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		ActorID:  actor,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusCreated
	if res.DuplicateOfPriorImport {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

// GetImports handles GET /api/schedule/imports?limit=N.
func (h *Handler) GetImports(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			h.respondError(c, fmt.Errorf("%w: limit must be between 1 and 500", apperr.ErrInput))
			return
		}
		limit = n
	}

	imports, err := h.store.Imports(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, imports)
}
