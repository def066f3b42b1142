package wire

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"relay/pkg/logger"
)

// dashScopeHosts identifies endpoints speaking the DashScope dialect, which
// rejects capitalized JSON-schema type tokens and string-typed array-length
// constraints.
var dashScopeHosts = []string{
	"dashscope.aliyuncs.com",
	"dashscope-intl.aliyuncs.com",
}

// NormalizeBody applies backend-specific wire-dialect rewrites to a request
// body, keyed on the request's base URL. Bodies for dialects without quirks
// pass through untouched.
func NormalizeBody(baseURL string, body []byte) []byte {
	if !isDashScope(baseURL) {
		return body
	}

	tools := gjson.GetBytes(body, "tools")
	if !tools.IsArray() {
		return body
	}

	out := body
	for i := range tools.Array() {
		path := "tools." + strconv.Itoa(i) + ".function.parameters"
		params := gjson.GetBytes(out, path)
		if !params.IsObject() {
			continue
		}
		normalized := normalizeSchema(params.Value())
		rewritten, err := sjson.SetBytes(out, path, normalized)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("dialect schema rewrite failed")
			continue
		}
		out = rewritten
	}
	return out
}

func isDashScope(baseURL string) bool {
	for _, host := range dashScopeHosts {
		if strings.Contains(baseURL, host) {
			return true
		}
	}
	return false
}

// normalizeSchema lowercases "type" tokens and converts string-typed
// minItems/maxItems to integers, recursively.
func normalizeSchema(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			switch k {
			case "type":
				if s, ok := child.(string); ok {
					out[k] = strings.ToLower(s)
					continue
				}
			case "minItems", "maxItems":
				if s, ok := child.(string); ok {
					if n, err := strconv.Atoi(s); err == nil {
						out[k] = n
						continue
					}
				}
			}
			out[k] = normalizeSchema(child)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			out[i] = normalizeSchema(child)
		}
		return out
	default:
		return v
	}
}
