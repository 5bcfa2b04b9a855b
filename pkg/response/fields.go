package response

import (
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"
)

// SelectFields trims data to the keys named by the "fields" query parameter
// and drops those named by "exclude". An object is trimmed directly, a list
// item by item. Data that does not render as a JSON object passes through.
func SelectFields(c *gin.Context, data any) any {
	if c == nil || c.Request == nil || data == nil {
		return data
	}
	include := splitKeys(c.Query("fields"))
	exclude := splitKeys(c.Query("exclude"))
	if len(include) == 0 && len(exclude) == 0 {
		return data
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return data
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return data
	}

	switch value := decoded.(type) {
	case []any:
		for i, item := range value {
			value[i] = filterKeys(item, include, exclude)
		}
		return value
	default:
		return filterKeys(value, include, exclude)
	}
}

func filterKeys(value any, include, exclude map[string]struct{}) any {
	object, ok := value.(map[string]any)
	if !ok {
		return value
	}
	for key := range object {
		if _, keep := include[key]; len(include) > 0 && !keep {
			delete(object, key)
			continue
		}
		if _, drop := exclude[key]; drop {
			delete(object, key)
		}
	}
	return object
}

func splitKeys(raw string) map[string]struct{} {
	keys := make(map[string]struct{})
	for _, key := range strings.Split(raw, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys[key] = struct{}{}
		}
	}
	return keys
}
