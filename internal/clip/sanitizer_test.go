package clip

import (
	"strings"
	"testing"
)

func TestSanitizeRedactsAuthorizationHeaderAndTokenQueryParam(t *testing.T) {
	doc := &Document{Log: Log{Entries: []Entry{{
		Request: HARRequest{
			URL:         "https://api.example.com/users?token=abc&page=1",
			Headers:     []Header{{Name: "Authorization", Value: "Bearer x"}},
			QueryString: []QueryParam{{Name: "token", Value: "abc"}, {Name: "page", Value: "1"}},
		},
	}}}}

	s := Sanitizer{SanitizeURLParams: true}
	s.Sanitize(doc)

	entry := doc.Log.Entries[0]
	if entry.Request.Headers[0].Value != redacted {
		t.Fatalf("expected Authorization header redacted, got %q", entry.Request.Headers[0].Value)
	}
	if entry.Request.QueryString[0].Value != redacted {
		t.Fatalf("expected token query param redacted, got %q", entry.Request.QueryString[0].Value)
	}
	if entry.Request.QueryString[1].Value != "1" {
		t.Fatalf("expected page query param untouched, got %q", entry.Request.QueryString[1].Value)
	}
	if !strings.Contains(entry.Request.URL, "page=1") {
		t.Fatalf("expected url to retain page=1, got %q", entry.Request.URL)
	}
	if !strings.Contains(entry.Request.URL, "token=") {
		t.Fatalf("expected url to retain token param name, got %q", entry.Request.URL)
	}
	if strings.Contains(entry.Request.URL, "abc") {
		t.Fatalf("expected token value redacted out of url, got %q", entry.Request.URL)
	}
}

func TestSanitizeRedactsWSJSONTextFrame(t *testing.T) {
	doc := &Document{Log: Log{WSEvents: []WSMessage{{
		Opcode: 1,
		Data:   `{"auth_token":"s","msg":"hi"}`,
	}}}}

	s := Sanitizer{}
	s.Sanitize(doc)

	got := doc.Log.WSEvents[0].Data
	if !strings.Contains(got, `"auth_token":"[REDACTED]"`) {
		t.Fatalf("expected auth_token redacted, got %q", got)
	}
	if !strings.Contains(got, `"msg":"hi"`) {
		t.Fatalf("expected msg preserved, got %q", got)
	}
}

func TestSanitizeNonJSONWSFrameLeftUnchanged(t *testing.T) {
	doc := &Document{Log: Log{WSEvents: []WSMessage{{Opcode: 1, Data: "plain text, not json"}}}}
	s := Sanitizer{}
	s.Sanitize(doc)
	if doc.Log.WSEvents[0].Data != "plain text, not json" {
		t.Fatalf("expected non-json ws payload untouched, got %q", doc.Log.WSEvents[0].Data)
	}
}

func TestSanitizeRedactsNonJSONPostDataBody(t *testing.T) {
	doc := &Document{Log: Log{Entries: []Entry{{
		Request: HARRequest{PostData: &PostData{MimeType: "application/x-www-form-urlencoded", Text: "password=hunter2&user=bob"}},
	}}}}
	s := Sanitizer{}
	s.Sanitize(doc)

	got := doc.Log.Entries[0].Request.PostData.Text
	if !strings.Contains(got, "password="+redacted) {
		t.Fatalf("expected password value redacted, got %q", got)
	}
	if !strings.Contains(got, "user=bob") {
		t.Fatalf("expected unrelated field preserved, got %q", got)
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	doc := &Document{Log: Log{Entries: []Entry{{
		Request: HARRequest{
			URL:     "https://api.example.com/x?token=abc",
			Headers: []Header{{Name: "Authorization", Value: "Bearer x"}},
			PostData: &PostData{Text: `{"secret":"v"}`},
		},
	}}, WSEvents: []WSMessage{{Opcode: 1, Data: `{"auth_token":"s"}`}}}}

	s := Sanitizer{SanitizeURLParams: true}
	s.Sanitize(doc)
	once, err := marshalForCompare(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s.Sanitize(doc)
	twice, err := marshalForCompare(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if once != twice {
		t.Fatalf("expected sanitize to be idempotent, got %q then %q", once, twice)
	}
}

func TestSanitizeHonorsCustomHeaderPatterns(t *testing.T) {
	doc := &Document{Log: Log{Entries: []Entry{{
		Request: HARRequest{Headers: []Header{{Name: "X-Internal-Trace", Value: "v"}}},
	}}}}
	s := Sanitizer{CustomPatterns: []string{"internal-trace"}}
	s.Sanitize(doc)
	if doc.Log.Entries[0].Request.Headers[0].Value != redacted {
		t.Fatalf("expected custom pattern header redacted")
	}
}
