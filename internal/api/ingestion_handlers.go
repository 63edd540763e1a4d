package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"maritime-tutor/internal/ingestion"
)

// IngestDocumentHandler runs the ingestion pipeline (spec §4.6) against an
// already-uploaded PDF path, admin-only. Kept deliberately thin: the real
// work (classify → extract → chunk → embed → index) lives in
// internal/ingestion; this handler is just the HTTP front door.
func IngestDocumentHandler(pipeline *ingestion.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Path       string `json:"path"`
			DocumentID string `json:"document_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" || req.DocumentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing path or document_id"})
			return
		}

		report, err := pipeline.RunDocument(c.Request.Context(), req.Path, req.DocumentID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ingestion failed", "detail": err.Error()})
			return
		}

		c.JSON(http.StatusOK, report)
	}
}
