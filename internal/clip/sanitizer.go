package clip

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// blocklistExact and blocklistSubstring are the union header-blocklist
// policy (spec §4.4), following the teacher's settings.go pattern of
// string-matching header names against a fixed set before replacing the
// value with "[REDACTED]".
var blocklistExact = map[string]bool{
	"authorization":   true,
	"cookie":          true,
	"set-cookie":      true,
	"x-api-key":       true,
	"x-auth-token":    true,
	"x-access-token":  true,
}

var blocklistSubstrings = []string{"token", "key", "secret", "password", "credential", "auth", "session", "jwt", "bearer"}

// Sanitizer redacts secrets from a built Document in place, driven by the
// configured custom header patterns and the URL-param toggle (spec §4.5's
// reactive sanitize_url_params / custom_header_patterns keys).
type Sanitizer struct {
	SanitizeURLParams bool
	CustomPatterns    []string
}

func (s Sanitizer) matchesHeaderName(name string) bool {
	lower := strings.ToLower(name)
	if blocklistExact[lower] {
		return true
	}
	for _, p := range blocklistSubstrings {
		if strings.Contains(lower, p) {
			return true
		}
	}
	for _, p := range s.CustomPatterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func (s Sanitizer) redactHeaders(headers []Header) []Header {
	out := make([]Header, len(headers))
	for i, h := range headers {
		out[i] = h
		if s.matchesHeaderName(h.Name) {
			out[i].Value = redacted
		}
	}
	return out
}

func (s Sanitizer) redactQueryParams(params []QueryParam) []QueryParam {
	out := make([]QueryParam, len(params))
	for i, q := range params {
		out[i] = q
		if s.matchesHeaderName(q.Name) {
			out[i].Value = redacted
		}
	}
	return out
}

// redactURL rewrites rawURL's query string, replacing any parameter whose
// name matches the pattern set, when URL-param sanitization is enabled.
func (s Sanitizer) redactURL(rawURL string) string {
	if !s.SanitizeURLParams {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	values := u.Query()
	changed := false
	for name := range values {
		if s.matchesHeaderName(name) {
			for i := range values[name] {
				values[name][i] = redacted
			}
			changed = true
		}
	}
	if changed {
		u.RawQuery = values.Encode()
	}
	return u.String()
}

// redactJSONValue recursively walks a decoded JSON value, replacing the
// value of any object key that matches the pattern set (spec §4.4's
// postData/WS/SSE JSON redaction).
func (s Sanitizer) redactJSONValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, val := range tv {
			if s.matchesHeaderName(k) {
				out[k] = redacted
			} else {
				out[k] = s.redactJSONValue(val)
			}
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = s.redactJSONValue(item)
		}
		return out
	default:
		return v
	}
}

var nonJSONPatternRe = regexp.MustCompile(`[=:]\s*([^&\s]+)`)

// redactJSONText applies JSON recursive redaction when text parses as a
// JSON object or array, otherwise returns fallback(text) unchanged.
func (s Sanitizer) redactJSONText(text string, fallback func(string) string) string {
	if text == "" {
		return text
	}
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err == nil {
		switch decoded.(type) {
		case map[string]any, []any:
			if out, merr := json.Marshal(s.redactJSONValue(decoded)); merr == nil {
				return string(out)
			}
		}
	}
	return fallback(text)
}

// redactText is postData.text's redaction: JSON recursive, regex fallback
// for non-JSON bodies (spec §4.4).
func (s Sanitizer) redactText(text string) string {
	return s.redactJSONText(text, s.redactNonJSONText)
}

// redactStreamText is WS/SSE payload redaction: JSON recursive, pass
// non-JSON payloads through unchanged (spec §4.4).
func (s Sanitizer) redactStreamText(text string) string {
	return s.redactJSONText(text, func(t string) string { return t })
}

func (s Sanitizer) redactNonJSONText(text string) string {
	patterns := append(append([]string{}, blocklistSubstrings...), s.CustomPatterns...)
	for name := range blocklistExact {
		patterns = append(patterns, name)
	}
	out := text
	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)(` + regexp.QuoteMeta(p) + `[=:]\s*)([^&\s]+)`)
		if err != nil {
			continue
		}
		out = re.ReplaceAllString(out, fmt.Sprintf("${1}%s", redacted))
	}
	return out
}

// Sanitize redacts a built Document in place and returns it, so the caller
// can chain Build -> Sanitize -> serialize (spec §4.4: "Operates on the
// built document; does not touch the Store").
func (s Sanitizer) Sanitize(doc *Document) *Document {
	for i := range doc.Log.Entries {
		e := &doc.Log.Entries[i]
		e.Request.Headers = s.redactHeaders(e.Request.Headers)
		e.Request.QueryString = s.redactQueryParams(e.Request.QueryString)
		e.Request.Cookies = []Header{}
		e.Request.URL = s.redactURL(e.Request.URL)
		if e.Request.PostData != nil {
			e.Request.PostData.Text = s.redactText(e.Request.PostData.Text)
		}
		e.Response.Headers = s.redactHeaders(e.Response.Headers)
		e.Response.Cookies = []Header{}
	}
	for i := range doc.Log.WSEvents {
		m := &doc.Log.WSEvents[i]
		m.URL = s.redactURL(m.URL)
		if m.Opcode == 1 {
			m.Data = s.redactStreamText(m.Data)
		}
	}
	for i := range doc.Log.SSEItems {
		item := &doc.Log.SSEItems[i]
		item.URL = s.redactURL(item.URL)
		item.Data = s.redactStreamText(item.Data)
	}
	return doc
}
