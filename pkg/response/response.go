// Package response writes the JSON envelope every endpoint answers with:
// {"success", "data", "message", "error", "meta"}.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/crmhub/pkg/errors"
)

const DefaultMessage = "Operation successful"

type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Message string     `json:"message,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

type ErrorInfo struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details appErrors.Details `json:"details,omitempty"`
}

// Meta is the pagination block of list responses.
type Meta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NewMeta rounds the page count up; a non-positive perPage counts as 1.
func NewMeta(page, perPage int, total int64) *Meta {
	size := int64(max(perPage, 1))
	return &Meta{
		Page:       page,
		PerPage:    int(size),
		Total:      total,
		TotalPages: int((total + size - 1) / size),
	}
}

// CursorMeta is the meta block of cursor paginated lists. A nil cursor means
// there is no page in that direction.
type CursorMeta struct {
	CursorNext     *string `json:"cursor_next"`
	CursorPrevious *string `json:"cursor_previous"`
	PerPage        int     `json:"per_page"`
}

type cursorResponse struct {
	Success bool        `json:"success"`
	Data    any         `json:"data"`
	Message string      `json:"message"`
	Meta    *CursorMeta `json:"meta"`
}

// emptyResponse keeps "data" in the payload when there is nothing to return.
type emptyResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Response{Success: true, Data: SelectFields(c, data), Message: DefaultMessage})
}

func SuccessWithMessage(c *gin.Context, statusCode int, data any, message string) {
	if message == "" {
		message = DefaultMessage
	}
	c.JSON(statusCode, Response{Success: true, Data: SelectFields(c, data), Message: message})
}

func SuccessWithMeta(c *gin.Context, statusCode int, data any, meta *Meta) {
	c.JSON(statusCode, Response{Success: true, Data: SelectFields(c, data), Message: DefaultMessage, Meta: meta})
}

// SuccessWithCursor writes one cursor paginated page.
func SuccessWithCursor(c *gin.Context, data any, meta *CursorMeta) {
	c.JSON(http.StatusOK, cursorResponse{Success: true, Data: SelectFields(c, data), Message: DefaultMessage, Meta: meta})
}

// Deleted answers a completed delete with 200 and "data": null.
func Deleted(c *gin.Context, message string) {
	if message == "" {
		message = DefaultMessage
	}
	c.JSON(http.StatusOK, emptyResponse{Success: true, Message: message})
}

// Error renders err through its AppError. Anything else, nil included, is
// a 500 that hides the cause.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr == nil {
		appErr = appErrors.ErrInternalServer
	}
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if appErr.Internal != nil {
		_ = c.Error(appErr.Internal)
	}
	c.JSON(status, Response{Error: &ErrorInfo{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}})
}

// Abort writes the error envelope and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
