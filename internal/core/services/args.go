package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/custodia-labs/d365-mcp/internal/core/domain"
)

// Tool arguments come straight from the client's JSON, so numbers arrive as
// float64 or json.Number and clients regularly send "50" or "true" as strings.

// requiredString returns a non-empty string argument or an error naming it.
func requiredString(args map[string]any, key string) (string, error) {
	if s, ok := stringArg(args, key); ok && s != "" {
		return s, nil
	}
	return "", fmt.Errorf("%w: missing required parameter: %s", domain.ErrInvalidInput, key)
}

// stringArg returns args[key] when it is a string.
func stringArg(args map[string]any, key string) (string, bool) {
	s, ok := args[key].(string)
	return s, ok
}

// listArg splits a comma-separated string argument, trimming each item.
func listArg(args map[string]any, key string) []string {
	s, ok := stringArg(args, key)
	if !ok {
		return nil
	}

	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// intArg accepts a JSON number or a numeric string. Negative or fractional
// values are treated as absent.
func intArg(args map[string]any, key string) (int, bool) {
	var f float64

	switch v := args[key].(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		f = float64(n)
	default:
		return 0, false
	}

	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// boolArg accepts a JSON boolean or the literal string "true".
func boolArg(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

// FormatKey prepares a record identifier for an OData key segment. GUIDs are
// recognised by their hyphens and single-quoted unless already quoted.
func FormatKey(id string) string {
	if strings.Contains(id, "-") && !strings.HasPrefix(id, "'") {
		return "'" + id + "'"
	}
	return id
}
