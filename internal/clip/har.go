// Package clip builds, sanitizes and uploads extended HAR documents from a
// time-range/tab-set snapshot of the Store (spec §4.4). The HAR type shapes
// follow the retrieval pack's HAR exporter
// (brennhill-gasoline-mcp-ai-devtools/cmd/dev-console/export_har.go),
// extended here with the sibling WebSocket/SSE arrays and per-entry
// _tabId/_hostname/_resourceType fields the spec's extended format adds.
package clip

import "github.com/dgnsrekt/clipengine/internal/types"

const harVersion = "1.2"
const creatorVersion = "1.0.0"

// Document is the top-level extended HAR document (spec §6).
type Document struct {
	Log Log `json:"log"`
}

type Log struct {
	Version  string      `json:"version"`
	Creator  Creator     `json:"creator"`
	Browser  Browser     `json:"browser"`
	Pages    []Page      `json:"pages"`
	Entries  []Entry     `json:"entries"`
	WSEvents []WSMessage `json:"_webSocketMessages"`
	SSEItems []SSEItem   `json:"_serverSentEvents"`
}

type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Browser struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Page struct {
	StartedDateTime string      `json:"startedDateTime"`
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	PageTimings     PageTimings `json:"pageTimings"`
}

type PageTimings struct {
	OnContentLoad int `json:"onContentLoad"`
	OnLoad        int `json:"onLoad"`
}

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type QueryParam struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type PostData struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

type HARRequest struct {
	Method      string       `json:"method"`
	URL         string       `json:"url"`
	HTTPVersion string       `json:"httpVersion"`
	Headers     []Header     `json:"headers"`
	QueryString []QueryParam `json:"queryString"`
	Cookies     []Header     `json:"cookies"`
	HeadersSize int          `json:"headersSize"`
	BodySize    int          `json:"bodySize"`
	PostData    *PostData    `json:"postData,omitempty"`
}

type Content struct {
	Size     int    `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

type Response struct {
	Status      int      `json:"status"`
	StatusText  string   `json:"statusText"`
	HTTPVersion string   `json:"httpVersion"`
	Headers     []Header `json:"headers"`
	Cookies     []Header `json:"cookies"`
	Content     Content  `json:"content"`
	RedirectURL string   `json:"redirectURL"`
	HeadersSize int      `json:"headersSize"`
	BodySize    int      `json:"bodySize"`
}

type Timings struct {
	Blocked int   `json:"blocked"`
	DNS     int   `json:"dns"`
	Connect int   `json:"connect"`
	SSL     int   `json:"ssl"`
	Send    int   `json:"send"`
	Wait    int64 `json:"wait"`
	Receive int   `json:"receive"`
}

type Entry struct {
	StartedDateTime string      `json:"startedDateTime"`
	Time            int64       `json:"time"`
	Request         HARRequest  `json:"request"`
	Response        Response    `json:"response"`
	Cache           struct{}    `json:"cache"`
	Timings         Timings     `json:"timings"`
	TabID           int         `json:"_tabId"`
	Hostname        string      `json:"_hostname"`
	ResourceType    string      `json:"_resourceType"`
}

type WSMessage struct {
	Timestamp string `json:"timestamp"`
	TabID     int    `json:"tabId"`
	URL       string `json:"url"`
	ConnID    string `json:"connectionId"`
	Type      string `json:"type"`
	Opcode    int    `json:"opcode"`
	Data      string `json:"data"`
	Size      int    `json:"size"`
}

type SSEItem struct {
	Timestamp string `json:"timestamp"`
	TabID     int    `json:"tabId"`
	URL       string `json:"url"`
	Event     string `json:"event"`
	Data      string `json:"data"`
	ID        string `json:"id"`
}

func headersFrom(in []types.Header) []Header {
	out := make([]Header, 0, len(in))
	for _, h := range in {
		out = append(out, Header{Name: h.Name, Value: h.Value})
	}
	return out
}

func queryFrom(in []types.QueryParam) []QueryParam {
	out := make([]QueryParam, 0, len(in))
	for _, q := range in {
		out = append(out, QueryParam{Name: q.Name, Value: q.Value})
	}
	return out
}

func entryFrom(e types.HTTPEntry) Entry {
	req := HARRequest{
		Method:      e.Request.Method,
		URL:         e.Request.URL,
		HTTPVersion: e.Request.HTTPVersion,
		Headers:     headersFrom(e.Request.Headers),
		QueryString: queryFrom(e.Request.QueryString),
		Cookies:     []Header{},
		HeadersSize: e.Request.HeaderSize,
		BodySize:    e.Request.BodySize,
	}
	if e.Request.PostData != nil {
		req.PostData = &PostData{MimeType: e.Request.PostData.MimeType, Text: e.Request.PostData.Text}
	}
	resp := Response{
		Status:      e.Response.Status,
		StatusText:  e.Response.StatusText,
		HTTPVersion: e.Response.HTTPVersion,
		Headers:     headersFrom(e.Response.Headers),
		Cookies:     []Header{},
		Content: Content{
			Size:     e.Response.Content.Size,
			MimeType: e.Response.Content.MimeType,
			Text:     e.Response.Content.Text,
			Encoding: e.Response.Content.Encoding,
		},
		RedirectURL: e.Response.RedirectURL,
		HeadersSize: e.Response.HeaderSize,
		BodySize:    e.Response.BodySize,
	}
	return Entry{
		StartedDateTime: e.StartedAt,
		Time:            e.ElapsedMS,
		Request:         req,
		Response:        resp,
		Timings:         Timings{Blocked: -1, DNS: -1, Connect: -1, SSL: -1, Send: 0, Wait: e.ElapsedMS, Receive: 0},
		TabID:           e.TabID,
		Hostname:        e.Hostname,
		ResourceType:    e.ResourceType,
	}
}

func wsMessageFrom(f types.WSFrame) WSMessage {
	return WSMessage{
		Timestamp: formatISO(f.Timestamp),
		TabID:     f.TabID,
		URL:       f.URL,
		ConnID:    f.ConnID,
		Type:      f.Direction,
		Opcode:    f.Opcode,
		Data:      f.Data,
		Size:      f.Size,
	}
}

func sseItemFrom(e types.SSEEvent) SSEItem {
	return SSEItem{
		Timestamp: formatISO(e.Timestamp),
		TabID:     e.TabID,
		URL:       e.URL,
		Event:     e.EventType,
		Data:      e.Data,
		ID:        e.EventID,
	}
}
