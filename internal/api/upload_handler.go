package api

import (
	"alcyxob/fight-gateway/internal/domain"
	"alcyxob/fight-gateway/internal/gateway"
	"alcyxob/fight-gateway/internal/logger"
	"alcyxob/fight-gateway/internal/service"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// multipartOverhead is the slack allowed on top of the policy limit for
// boundaries and part headers.
const multipartOverhead = 1 << 20

// UploadHandler exposes the upload gateway over HTTP.
type UploadHandler struct {
	uploadService service.UploadService
	log           logger.Logger
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(uploadService service.UploadService, log logger.Logger) *UploadHandler {
	return &UploadHandler{uploadService: uploadService, log: log}
}

// --- DTOs for API ---

// RequestUploadURLRequest describes a file the client intends to PUT straight to the bucket.
type RequestUploadURLRequest struct {
	FileName    string `json:"fileName" binding:"required"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size" binding:"gt=0"`
}

// ConfirmUploadRequest names an object the client finished uploading to a presigned URL.
type ConfirmUploadRequest struct {
	ObjectKey string `json:"objectKey" binding:"required"`
}

// rejectionResponse writes a validation rejection. The message is user-facing.
func rejectionResponse(c *gin.Context, rej *gateway.Rejection) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": rej.Message, "reason": rej.Reason})
}

// --- Handler Methods ---

// OfferUpload godoc
// @Summary Offer a file for upload
// @Description Validates the first file of the multipart "file" field and stages it, replacing any file staged before.
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Video file (MP4, MOV or AVI)"
// @Success 201 {object} service.UploadSummary "File staged"
// @Success 204 "No file was selected"
// @Failure 400 {object} gin.H "Body is not multipart/form-data"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 422 {object} gin.H "File rejected (invalid_type, too_large)"
// @Failure 500 {object} gin.H "File could not be staged"
// @Router /uploads [post]
func (h *UploadHandler) OfferUpload(c *gin.Context) {
	sessionID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	policy := h.uploadService.Policy()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, policy.MaxBytes+multipartOverhead)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			rejectionResponse(c, policy.TooLarge())
		case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
			abortWithError(c, http.StatusBadRequest, "Request must be multipart/form-data.")
		default:
			h.log.Warn("Failed to read multipart body", "session", sessionID, "error", err)
			abortWithError(c, http.StatusBadRequest, "Failed to read upload.")
		}
		return
	}
	defer form.RemoveAll()

	candidates := make([]domain.UploadCandidate, 0, 1)
	var opened multipart.File
	if headers := form.File["file"]; len(headers) > 0 {
		// Only the first file counts; the rest are ignored.
		fh := headers[0]
		opened, err = fh.Open()
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, "Failed to read upload.")
			return
		}
		defer opened.Close()
		candidates = append(candidates, domain.UploadCandidate{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Content:     opened,
		})
	}

	summary, err := h.uploadService.OfferUpload(c.Request.Context(), sessionID, candidates...)
	if err != nil {
		var rej *gateway.Rejection
		switch {
		case errors.Is(err, gateway.ErrNoCandidate):
			c.Status(http.StatusNoContent)
		case errors.Is(err, gateway.ErrStagingFailed) && errors.As(err, &rej):
			h.log.Error("Staging failed", "session", sessionID, "error", err)
			abortWithError(c, http.StatusInternalServerError, rej.Message)
		case errors.As(err, &rej):
			rejectionResponse(c, rej)
		default:
			h.log.Error("Upload failed", "session", sessionID, "error", err)
			abortWithError(c, http.StatusInternalServerError, "Failed to process upload.")
		}
		return
	}

	c.JSON(http.StatusCreated, summary)
}

// GetCurrentUpload godoc
// @Summary Describe the staged file
// @Tags Uploads
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.UploadSummary
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 404 {object} gin.H "Nothing staged"
// @Router /uploads/current [get]
func (h *UploadHandler) GetCurrentUpload(c *gin.Context) {
	sessionID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	summary, err := h.uploadService.CurrentUpload(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, service.ErrNothingStaged) {
			abortWithError(c, http.StatusNotFound, "No file is staged.")
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to retrieve staged file.")
		}
		return
	}
	c.JSON(http.StatusOK, summary)
}

// DiscardUpload godoc
// @Summary Discard the staged file
// @Tags Uploads
// @Security BearerAuth
// @Success 204 "Discarded (or nothing was staged)"
// @Failure 401 {object} gin.H "Unauthorized"
// @Router /uploads/current [delete]
func (h *UploadHandler) DiscardUpload(c *gin.Context) {
	sessionID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	if err := h.uploadService.DiscardUpload(c.Request.Context(), sessionID); err != nil {
		// The session is cleared either way; only the resource release failed.
		h.log.Warn("Release on discard failed", "session", sessionID, "error", err)
	}
	c.Status(http.StatusNoContent)
}

// SubmitForAnalysis godoc
// @Summary Submit the staged file for analysis
// @Tags Uploads
// @Produce json
// @Security BearerAuth
// @Success 202 {object} domain.AnalysisHandle
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 404 {object} gin.H "Nothing staged"
// @Failure 501 {object} gin.H "Analysis backend not configured"
// @Failure 502 {object} gin.H "Analysis backend failed"
// @Router /uploads/current/analysis [post]
func (h *UploadHandler) SubmitForAnalysis(c *gin.Context) {
	sessionID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	handle, err := h.uploadService.SubmitForAnalysis(c.Request.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNothingStaged):
			abortWithError(c, http.StatusNotFound, "No file is staged.")
		case errors.Is(err, service.ErrAnalysisUnavailable):
			abortWithError(c, http.StatusNotImplemented, "Analysis is not available yet.")
		default:
			abortWithError(c, http.StatusBadGateway, "Failed to submit file for analysis. Please try again.")
		}
		return
	}
	c.JSON(http.StatusAccepted, handle)
}

// RequestUploadURL godoc
// @Summary Get a presigned URL for direct upload
// @Description Validates the file metadata and returns a presigned PUT URL that only accepts exactly size bytes. Call /uploads/confirm once the PUT succeeds.
// @Tags Uploads
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RequestUploadURLRequest true "File metadata"
// @Success 200 {object} service.UploadURLResponse
// @Failure 400 {object} gin.H "Invalid input"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 422 {object} gin.H "File rejected"
// @Failure 503 {object} gin.H "Direct uploads not configured"
// @Router /uploads/presign [post]
func (h *UploadHandler) RequestUploadURL(c *gin.Context) {
	sessionID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	var req RequestUploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	resp, err := h.uploadService.RequestUploadURL(c.Request.Context(), sessionID, req.FileName, req.ContentType, req.Size)
	if err != nil {
		var rej *gateway.Rejection
		switch {
		case errors.As(err, &rej):
			rejectionResponse(c, rej)
		case errors.Is(err, service.ErrDirectUploadUnavailable):
			abortWithError(c, http.StatusServiceUnavailable, "Direct uploads are not available.")
		default:
			h.log.Error("Failed to generate upload URL", "session", sessionID, "error", err)
			abortWithError(c, http.StatusInternalServerError, "Failed to generate upload URL.")
		}
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ConfirmUpload godoc
// @Summary Confirm a direct upload
// @Description Checks the uploaded object's size and type and stages it, replacing any file staged before. Rejected objects are deleted.
// @Tags Uploads
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ConfirmUploadRequest true "Object key returned by /uploads/presign"
// @Success 201 {object} service.UploadSummary "File staged"
// @Failure 400 {object} gin.H "Invalid input"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 404 {object} gin.H "No upload URL was issued for this object"
// @Failure 409 {object} gin.H "Object not uploaded yet, or already confirmed"
// @Failure 422 {object} gin.H "File rejected"
// @Failure 503 {object} gin.H "Direct uploads not configured"
// @Router /uploads/confirm [post]
func (h *UploadHandler) ConfirmUpload(c *gin.Context) {
	sessionID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	var req ConfirmUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	summary, err := h.uploadService.ConfirmUpload(c.Request.Context(), sessionID, req.ObjectKey)
	if err != nil {
		var rej *gateway.Rejection
		switch {
		case errors.As(err, &rej):
			rejectionResponse(c, rej)
		case errors.Is(err, service.ErrDirectUploadUnavailable):
			abortWithError(c, http.StatusServiceUnavailable, "Direct uploads are not available.")
		case errors.Is(err, service.ErrUnknownUpload):
			abortWithError(c, http.StatusNotFound, "No upload URL was issued for this object.")
		case errors.Is(err, service.ErrUploadNotReceived):
			abortWithError(c, http.StatusConflict, "The file has not been uploaded yet.")
		case errors.Is(err, service.ErrAlreadyConfirmed):
			abortWithError(c, http.StatusConflict, "This upload was already confirmed.")
		default:
			h.log.Error("Failed to confirm upload", "session", sessionID, "key", req.ObjectKey, "error", err)
			abortWithError(c, http.StatusInternalServerError, "Failed to confirm upload.")
		}
		return
	}
	c.JSON(http.StatusCreated, summary)
}

// ListUploads godoc
// @Summary Upload history for the caller
// @Tags Uploads
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum number of records"
// @Success 200 {array} domain.UploadRecord
// @Failure 400 {object} gin.H "Invalid limit"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /uploads [get]
func (h *UploadHandler) ListUploads(c *gin.Context) {
	sessionID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	var limit int64
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || limit < 0 {
			abortWithError(c, http.StatusBadRequest, "limit must be a non-negative integer.")
			return
		}
	}

	records, err := h.uploadService.ListUploads(c.Request.Context(), sessionID, limit)
	if err != nil {
		h.log.Error("Failed to list uploads", "session", sessionID, "error", err)
		abortWithError(c, http.StatusInternalServerError, "Failed to retrieve uploads.")
		return
	}
	c.JSON(http.StatusOK, records)
}
