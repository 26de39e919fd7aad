package tap

import (
	"encoding/base64"
	"strings"

	"github.com/chromedp/cdproto/network"

	"github.com/dgnsrekt/clipengine/internal/capture"
)

// postDataFromEntries reconstructs the request body text from the
// PostDataEntries the CDP protocol now reports in place of the removed
// Request.PostData string field.
func postDataFromEntries(entries []*network.PostDataEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, e := range entries {
		if e == nil || e.Bytes == "" {
			continue
		}
		if decoded, err := base64.StdEncoding.DecodeString(e.Bytes); err == nil {
			sb.Write(decoded)
		}
	}
	return sb.String()
}

func headersToMap(h network.Headers) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func decodeRequestWillBeSent(tabID int, ev *network.EventRequestWillBeSent) capture.RequestWillBeSent {
	out := capture.RequestWillBeSent{
		RequestID:    string(ev.RequestID),
		TabID:        tabID,
		ResourceType: ev.Type.String(),
	}
	if ev.Request != nil {
		out.Method = ev.Request.Method
		out.URL = ev.Request.URL
		out.Headers = headersToMap(ev.Request.Headers)
		out.HasPostData = ev.Request.HasPostData
		out.PostData = postDataFromEntries(ev.Request.PostDataEntries)
	}
	if ev.RedirectResponse != nil {
		out.Redirect = &capture.RedirectResponse{
			Status:      int(ev.RedirectResponse.Status),
			StatusText:  ev.RedirectResponse.StatusText,
			Headers:     headersToMap(ev.RedirectResponse.Headers),
			MimeType:    ev.RedirectResponse.MimeType,
			HTTPVersion: ev.RedirectResponse.Protocol,
			URL:         ev.Request.URL,
		}
	}
	return out
}

func decodeResponseReceived(ev *network.EventResponseReceived) capture.ResponseReceived {
	out := capture.ResponseReceived{RequestID: string(ev.RequestID)}
	if ev.Response != nil {
		out.Status = int(ev.Response.Status)
		out.StatusText = ev.Response.StatusText
		out.Headers = headersToMap(ev.Response.Headers)
		out.MimeType = ev.Response.MimeType
		out.HTTPVersion = ev.Response.Protocol
	}
	return out
}

func decodeLoadingFinished(ev *network.EventLoadingFinished) capture.LoadingFinished {
	return capture.LoadingFinished{
		RequestID:         string(ev.RequestID),
		EncodedDataLength: int64(ev.EncodedDataLength),
	}
}

func decodeLoadingFailed(ev *network.EventLoadingFailed) capture.LoadingFailed {
	return capture.LoadingFailed{RequestID: string(ev.RequestID), ErrorText: ev.ErrorText}
}

func decodeWSCreated(tabID int, ev *network.EventWebSocketCreated) capture.WSCreated {
	return capture.WSCreated{RequestID: string(ev.RequestID), TabID: tabID, URL: ev.URL}
}

func decodeWSClosed(ev *network.EventWebSocketClosed) capture.WSClosed {
	return capture.WSClosed{RequestID: string(ev.RequestID)}
}

func decodeWSFrame(ev *network.EventWebSocketFrameSent) capture.WSFrame {
	out := capture.WSFrame{RequestID: string(ev.RequestID)}
	if ev.Response != nil {
		out.Opcode = int(ev.Response.Opcode)
		out.PayloadData = ev.Response.PayloadData
	}
	return out
}

func decodeWSFrameReceived(ev *network.EventWebSocketFrameReceived) capture.WSFrame {
	out := capture.WSFrame{RequestID: string(ev.RequestID)}
	if ev.Response != nil {
		out.Opcode = int(ev.Response.Opcode)
		out.PayloadData = ev.Response.PayloadData
	}
	return out
}

func decodeEventSourceMessage(tabID int, url string, ev *network.EventEventSourceMessageReceived) capture.SSEMessage {
	return capture.SSEMessage{
		RequestID: string(ev.RequestID),
		TabID:     tabID,
		URL:       url,
		EventName: ev.EventName,
		EventID:   ev.EventID,
		Data:      ev.Data,
	}
}
