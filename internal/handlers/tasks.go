package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stylizer/api/internal/media/sniffer"
	"stylizer/api/internal/repository"
	"stylizer/api/internal/service"
)

type submitResponse struct {
	TaskID    string    `json:"taskId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type resultResponse struct {
	TaskID       string `json:"taskId"`
	ImageKey     string `json:"imageKey"`
	Image        string `json:"image"` // base64-encoded png
	Analysis     string `json:"analysis,omitempty"`
	Review       any    `json:"review,omitempty"`
	AttemptCount int    `json:"attemptCount"`
}

func (h HandlerSet) SubmitTask(c *gin.Context) {
	input, ok := h.readUpload(c)
	if !ok {
		return
	}

	task, err := h.taskService.Submit(c.Request.Context(), input)
	if err != nil {
		h.submissionError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, submitResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		CreatedAt: task.CreatedAt,
	})
}

func (h HandlerSet) TaskStatus(c *gin.Context) {
	view, err := h.taskService.Status(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			h.taskNotFound(c)
			return
		}
		h.log.Error().Err(err).Msg("status read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "status lookup failed"})
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h HandlerSet) TaskResult(c *gin.Context) {
	view, err := h.taskService.Result(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			h.taskNotFound(c)
			return
		}
		var notDone *service.ErrNotCompleted
		if errors.As(err, &notDone) {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":   "TASK_NOT_COMPLETED",
				"error":  notDone.Error(),
				"status": notDone.Status,
			})
			return
		}
		h.log.Error().Err(err).Msg("result read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "result lookup failed"})
		return
	}

	c.JSON(http.StatusOK, resultResponse{
		TaskID:       view.TaskID,
		ImageKey:     view.ImageKey,
		Image:        base64.StdEncoding.EncodeToString(view.Image),
		Analysis:     view.Analysis,
		Review:       view.Review,
		AttemptCount: view.AttemptCount,
	})
}

// readUpload extracts the multipart image and access token. The multipart
// size limit is enforced twice: here against the declared header size so an
// oversized body is rejected before buffering, and in the service against
// the actual bytes.
func (h HandlerSet) readUpload(c *gin.Context) (service.SubmitInput, bool) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": service.CodeNoImage, "error": "no image file in request"})
		return service.SubmitInput{}, false
	}
	defer file.Close()

	maxBytes := h.cfg.Pipeline.MaxUploadBytes
	if header.Size > maxBytes {
		c.JSON(http.StatusBadRequest, gin.H{"code": service.CodeImageTooLarge, "error": "image exceeds the upload limit"})
		return service.SubmitInput{}, false
	}

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": service.CodeNoImage, "error": "unreadable image payload"})
		return service.SubmitInput{}, false
	}

	return service.SubmitInput{
		Data:         data,
		DeclaredMIME: sniffer.MimeTypeFromHTTP(http.Header(header.Header)),
		AccessToken:  c.PostForm("accessToken"),
	}, true
}

func (h HandlerSet) submissionError(c *gin.Context, err error) {
	if ve, ok := service.IsValidation(err); ok {
		status := http.StatusBadRequest
		if ve.Code == service.CodeInvalidAccessToken {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"code": ve.Code, "error": ve.Message})
		return
	}
	h.log.Error().Err(err).Msg("submission failed")
	c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "submission failed"})
}

func (h HandlerSet) taskNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"code":  "TASK_NOT_FOUND",
		"error": "unknown or expired task id; task records expire a fixed time after creation",
	})
}
