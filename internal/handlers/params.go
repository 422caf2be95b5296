package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// queryBool reads the first present name. Absent means false.
func queryBool(c *gin.Context, names ...string) (bool, error) {
	for _, name := range names {
		raw, ok := c.GetQuery(name)
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "", "1", "true", "yes", "on":
			return true, nil
		case "0", "false", "no", "off":
			return false, nil
		default:
			return false, invalid(name, "%q is not a boolean", raw)
		}
	}
	return false, nil
}

// queryDim reads an optional positive integer no larger than limit.
// Absent or empty means 0.
func queryDim(c *gin.Context, name string, limit int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid(name, "%q is not an integer", raw)
	}
	if v < 1 || v > limit {
		return 0, invalid(name, "must be between 1 and %d", limit)
	}
	return v, nil
}

// queryInt reads an optional integer without range checks. ok is false
// when the parameter is absent or empty.
func queryInt(c *gin.Context, name string) (v int, ok bool, err error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, false, nil
	}
	v, err = strconv.Atoi(raw)
	if err != nil {
		return 0, false, invalid(name, "%q is not an integer", raw)
	}
	return v, true, nil
}
