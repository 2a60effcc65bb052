package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrsinham/dicomscope/internal/dicom"
	"github.com/mrsinham/dicomscope/internal/hierarchy"
	"github.com/mrsinham/dicomscope/internal/imagestore"
)

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Hierarchy returns the whole tree with its node counts. Arrays keep
// insertion order. The tree is encoded under the builder's read lock and
// written after it is released.
func (h *Handler) Hierarchy(c *gin.Context) {
	var (
		body []byte
		err  error
	)
	h.builder.View(func(tree *hierarchy.Hierarchy) {
		body, err = json.Marshal(gin.H{
			"stats":    tree.Stats(),
			"subjects": tree.Subjects,
		})
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

type stackResponse struct {
	ImageIDs  []string             `json:"imageIds"`
	Sequences []hierarchy.Sequence `json:"sequences"`
}

// Stack returns the image stack of a series ordered by instance number.
func (h *Handler) Stack(c *gin.Context) {
	seqs, err := h.builder.SequencesOfSeries(c.Param("subject"), c.Param("visit"), c.Param("series"))
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := stackResponse{
		ImageIDs:  make([]string, 0, len(seqs)),
		Sequences: seqs,
	}
	for _, s := range seqs {
		resp.ImageIDs = append(resp.ImageIDs, s.ImageID)
	}
	c.JSON(http.StatusOK, resp)
}

// GetSelection returns the four cursors.
func (h *Handler) GetSelection(c *gin.Context) {
	c.JSON(http.StatusOK, h.builder.Selection())
}

// PutSelection replaces the four cursors.
func (h *Handler) PutSelection(c *gin.Context) {
	var sel hierarchy.Selection
	if err := c.ShouldBindJSON(&sel); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.builder.Select(sel); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.builder.Selection())
}

// ImageMetadata returns the grouped element dump of ?id=.
func (h *Handler) ImageMetadata(c *gin.Context) {
	ins, err := h.images.Metadata(c.Query("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ins)
}

// Thumbnail returns a PNG of ?id= bounded by ?size= pixels.
func (h *Handler) Thumbnail(c *gin.Context) {
	size := h.thumb
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > h.maxThumb {
			c.JSON(http.StatusBadRequest, gin.H{"error": "size must be an integer between 1 and " + strconv.Itoa(h.maxThumb)})
			return
		}
		size = n
	}

	png, err := h.images.Thumbnail(c.Query("id"), size)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}

// Scan rescans the configured root. Only one scan runs at a time.
func (h *Handler) Scan(c *gin.Context) {
	if !h.scanning.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"error": "scan already in progress"})
		return
	}
	defer h.scanning.Unlock()

	summary, err := h.scanner.Scan(c.Request.Context(), h.fsys, h.root)
	if err != nil {
		h.logger.Error("scan failed", "root", h.root, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary": summary,
		"stats":   h.builder.Stats(),
	})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, hierarchy.ErrNotFound), errors.Is(err, imagestore.ErrUnknownImage):
		status = http.StatusNotFound
	case errors.Is(err, dicom.ErrNotDICOM), errors.Is(err, dicom.ErrNoPixelData), errors.Is(err, dicom.ErrMalformed):
		status = http.StatusUnprocessableEntity
	default:
		h.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
