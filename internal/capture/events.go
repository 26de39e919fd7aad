package capture

// This file is the Go shape of the tap event contract (spec §6): the
// set of raw events the Capture Pipeline consumes from the browser-side
// event tap, and the one request/response body-retrieval call it issues
// back. internal/tap decodes chromedp/cdproto events into these before
// calling the Pipeline; nothing in this file depends on chromedp, so the
// pipeline's state machine is testable with hand-written fakes, in the
// same spirit as the teacher's fakes for its Service interface.

// RequestWillBeSent mirrors the CDP Network.requestWillBeSent event.
// Timing is not read off the event (CDP's Timestamp is a monotonic clock
// with no fixed epoch, not wall-clock time); the pipeline stamps with its
// own clock on receipt, same as every other event in this file.
type RequestWillBeSent struct {
	RequestID    string
	TabID        int
	Method       string
	URL          string
	Headers      map[string]string
	PostData     string
	HasPostData  bool
	ResourceType string
	Redirect     *RedirectResponse // non-nil when this leg replaces a prior one
}

// RedirectResponse is the response half of the leg a redirect replaces.
type RedirectResponse struct {
	Status      int
	StatusText  string
	Headers     map[string]string
	MimeType    string
	HTTPVersion string
	URL         string
}

// ResponseReceived mirrors Network.responseReceived.
type ResponseReceived struct {
	RequestID   string
	Status      int
	StatusText  string
	Headers     map[string]string
	MimeType    string
	HTTPVersion string
	URL         string
}

// LoadingFinished mirrors Network.loadingFinished.
type LoadingFinished struct {
	RequestID         string
	EncodedDataLength int64
}

// LoadingFailed mirrors Network.loadingFailed.
type LoadingFailed struct {
	RequestID string
	ErrorText string
}

// GetResponseBody is the body-retrieval round trip issued on
// loading_finished (spec §6). It is a suspension point; capture must
// tolerate other events interleaving while it is in flight.
type GetResponseBody func(requestID string) (body []byte, base64Encoded bool, err error)

// WSCreated mirrors Network.webSocketCreated.
type WSCreated struct {
	RequestID string
	TabID     int
	URL       string
}

// WSFrame mirrors Network.webSocketFrameSent / webSocketFrameReceived.
type WSFrame struct {
	RequestID   string
	Opcode      int
	PayloadData string
}

// WSClosed mirrors Network.webSocketClosed.
type WSClosed struct {
	RequestID string
}

// SSEMessage is synthesized by the tap from EventSource traffic observed
// over the network domain; it has no direct CDP event counterpart.
type SSEMessage struct {
	RequestID string
	TabID     int
	URL       string
	EventName string
	EventID   string
	Data      string
}
