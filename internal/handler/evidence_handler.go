package handler

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/moffermann/school-attendance-sub001/internal/service"
	appErrors "github.com/moffermann/school-attendance-sub001/pkg/errors"
	"github.com/moffermann/school-attendance-sub001/pkg/response"
)

// EvidenceHandler exposes withdrawal evidence upload and retrieval.
type EvidenceHandler struct {
	evidence    *service.EvidenceService
	withdrawals *service.WithdrawalService
}

// NewEvidenceHandler constructs EvidenceHandler.
func NewEvidenceHandler(evidence *service.EvidenceService, withdrawals *service.WithdrawalService) *EvidenceHandler {
	return &EvidenceHandler{evidence: evidence, withdrawals: withdrawals}
}

// Upload godoc
// @Summary Upload a verification photo or signature for a withdrawal
// @Tags Withdrawals
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Withdrawal ID"
// @Param kind formData string true "photo or signature"
// @Param file formData file true "Evidence file"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /withdrawals/{id}/evidence [post]
func (h *EvidenceHandler) Upload(c *gin.Context) {
	withdrawalID := c.Param("id")
	if _, err := h.withdrawals.Get(c.Request.Context(), withdrawalID); err != nil {
		response.Error(c, err)
		return
	}

	kind := service.EvidenceKind(c.PostForm("kind"))
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "evidence file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close()

	relPath, err := h.evidence.Save(withdrawalID, kind, fileHeader.Filename, file)
	if err != nil {
		response.Error(c, err)
		return
	}

	token, expiresAt, err := h.evidence.SignedURL(withdrawalID, relPath)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{
		"path":       relPath,
		"token":      token,
		"expires_at": expiresAt,
	})
}

// Download godoc
// @Summary Download evidence using a signed token
// @Tags Withdrawals
// @Produce octet-stream
// @Param token query string true "Signed evidence token"
// @Success 200 {file} binary
// @Router /evidence [get]
func (h *EvidenceHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	file, relPath, err := h.evidence.Open(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	contentType := mime.TypeByExtension(filepath.Ext(relPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file); err != nil {
		_ = c.Error(err)
	}
}
