package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

// Response 统一响应格式
type Response struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"` // 毫秒
}

func success(c *gin.Context, data any, message string) {
	if message == "" {
		message = "success"
	}
	c.JSON(http.StatusOK, Response{
		Code:      http.StatusOK,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{
		Code:      status,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}

func failErr(c *gin.Context, err error) {
	fail(c, statusFor(err), err.Error())
}

// statusFor 错误到 HTTP 状态码的映射
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrTargetIdentifierInvalid), errors.Is(err, models.ErrInvalidAccount):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNoAccountAvailable),
		errors.Is(err, models.ErrAcquisitionTimeout),
		errors.Is(err, models.ErrPoolClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// batchResponse 批量爬取响应
type batchResponse struct {
	Total   int                  `json:"total"`
	Success int                  `json:"success"`
	Failed  int                  `json:"failed"`
	Results []models.BatchResult `json:"results"`
}

func newBatchResponse(results []models.BatchResult) batchResponse {
	now := time.Now()
	sum := models.Summarize(results, now, now)
	return batchResponse{Total: sum.Total, Success: sum.Success, Failed: sum.Failed, Results: results}
}
