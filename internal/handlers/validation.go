package handlers

import (
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/services"
	appErrors "github.com/charlesng35/crmhub/pkg/errors"
	"github.com/charlesng35/crmhub/pkg/response"
	appValidator "github.com/charlesng35/crmhub/pkg/validator"
)

// reservedQueryKeys are list parameters that never become column filters.
var reservedQueryKeys = map[string]struct{}{
	"page":         {},
	"per_page":     {},
	"page_size":    {},
	"search":       {},
	"ordering":     {},
	"organization": {},
	"token":        {},
	"cursor":       {},
	"fields":       {},
	"exclude":      {},
}

// bindJSON decodes the payload into dest. Validation is left to the service so
// field errors keep one shape.
func bindJSON[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}
	return true
}

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if !bindJSON(c, dest) {
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, validationError(err))
		return false
	}

	return true
}

func validationError(err error) error {
	var failures appValidator.ValidationErrors
	if stderrors.As(err, &failures) && len(failures) > 0 {
		return appErrors.NewValidation("Invalid input.", failures.Fields())
	}
	return appErrors.NewBadRequest("invalid request payload")
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// listQuery maps page, per_page, search, ordering and cursor; every other query
// parameter is passed through as a filter and whitelisted by the service.
func listQuery(c *gin.Context) services.ListQuery {
	q := services.ListQuery{
		Page:     parseIntQuery(c, "page", 1),
		PerPage:  parseIntQuery(c, "per_page", parseIntQuery(c, "page_size", 0)),
		Search:   strings.TrimSpace(c.Query("search")),
		Ordering: strings.TrimSpace(c.Query("ordering")),
		Filters:  map[string]string{},
	}
	if values, ok := c.Request.URL.Query()["cursor"]; ok {
		cursor := ""
		if len(values) > 0 {
			cursor = strings.TrimSpace(values[0])
		}
		q.Cursor = &cursor
	}
	for key, values := range c.Request.URL.Query() {
		if _, reserved := reservedQueryKeys[key]; reserved || len(values) == 0 {
			continue
		}
		q.Filters[key] = strings.Join(values, ",")
	}
	return q
}

func writePage[T any](c *gin.Context, page services.Page[T]) {
	items := page.Items
	if items == nil {
		items = []T{}
	}
	if page.Cursor {
		response.SuccessWithCursor(c, items, &response.CursorMeta{
			CursorNext:     page.Next,
			CursorPrevious: page.Previous,
			PerPage:        page.PerPage,
		})
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, items, response.NewMeta(page.Page, page.PerPage, page.Total))
}

// bindOptionalJSON accepts an empty body for actions whose payload is optional.
func bindOptionalJSON[T any](c *gin.Context, dest *T) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, dest)
}

// parseTimeQuery reads an RFC 3339 timestamp or a plain date.
func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return &parsed, nil
		}
	}
	return nil, appErrors.FieldError(key, "Enter a valid date.")
}
