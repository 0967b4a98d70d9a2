package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/astrofuse/astrofuse-backend/internal/services"
)

type CatalogHandler struct {
	catalog services.CatalogService
}

func NewCatalogHandler(catalog services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

type ingestRecordsRequest struct {
	Records []services.RecordInput `json:"records"`
}

// POST /api/catalog/records
func (h *CatalogHandler) IngestRecords(c *gin.Context) {
	var req ingestRecordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	created, err := h.catalog.IngestRecords(c.Request.Context(), req.Records)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"records": created, "count": len(created)})
}

// DELETE /api/catalog/datasets/:catalog
func (h *CatalogHandler) RemoveDataset(c *gin.Context) {
	deleted, err := h.catalog.RemoveDataset(c.Request.Context(), c.Param("catalog"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"records_deleted": deleted})
}
