package capture

import (
	"context"
	"encoding/base64"
	"net/url"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/dgnsrekt/clipengine/internal/types"
)

const httpBodyCeiling = 5 * 1024 * 1024 // spec §3: body text present only when size <= 5 MiB

func headersToList(m map[string]string) []types.Header {
	out := make([]types.Header, 0, len(m))
	for k, v := range m {
		out = append(out, types.Header{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func headersByteSize(m map[string]string) int {
	n := 0
	for k, v := range m {
		n += len(k) + len(v) + 4
	}
	return n
}

func queryStringOf(rawURL string) []types.QueryParam {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	values := u.Query()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	var out []types.QueryParam
	for _, name := range names {
		for _, v := range values[name] {
			out = append(out, types.QueryParam{Name: name, Value: v})
		}
	}
	return out
}

// OnRequestWillBeSent advances the HTTP state machine on the INIT/PENDING
// transition (spec §4.2). A redirect leg finalizes the prior transaction
// immediately as FINALIZED before the new leg overwrites the pending
// entry, producing one entry per hop.
func (p *Pipeline) OnRequestWillBeSent(ctx context.Context, ev RequestWillBeSent) {
	hostname := hostnameOf(ev.URL)
	req := types.HTTPRequest{
		Method:      ev.Method,
		URL:         ev.URL,
		HTTPVersion: "HTTP/1.1",
		Headers:     headersToList(ev.Headers),
		QueryString: queryStringOf(ev.URL),
		HeaderSize:  headersByteSize(ev.Headers),
	}
	if ev.HasPostData && ev.PostData != "" {
		req.PostData = &types.PostData{MimeType: ev.Headers["Content-Type"], Text: ev.PostData}
		req.BodySize = len(ev.PostData)
	}

	requestedAt := p.now()

	p.mu.Lock()
	prior, hadPrior := p.pending[ev.RequestID]
	if hadPrior && ev.Redirect != nil {
		delete(p.pending, ev.RequestID)
	}
	p.pending[ev.RequestID] = &pendingHTTP{
		state:        httpPending,
		tabID:        ev.TabID,
		hostname:     hostname,
		requestedAt:  requestedAt,
		request:      req,
		resourceType: ev.ResourceType,
	}
	p.mu.Unlock()

	if hadPrior && ev.Redirect != nil {
		p.emitRedirectLeg(ctx, ev.RequestID, prior, ev.Redirect)
	}
}

// emitRedirectLeg finalizes the hop that the tap reported a redirect for.
// requestID is the same tap-assigned id the new leg continues under
// (spec §8 Scenario 4: "two HTTP entries with request-id equal"), so the
// redirect leg must carry it too, not just the terminal leg.
func (p *Pipeline) emitRedirectLeg(ctx context.Context, requestID string, prior *pendingHTTP, redirect *RedirectResponse) {
	now := p.now()
	entry := types.HTTPEntry{
		Envelope:     types.Envelope{TabID: prior.tabID, Hostname: prior.hostname, Timestamp: prior.requestedAt.UnixMilli()},
		StartedAt:    prior.requestedAt.UTC().Format(time.RFC3339Nano),
		RequestID:    requestID,
		Request:      prior.request,
		ResourceType: prior.resourceType,
		ElapsedMS:    now.Sub(prior.requestedAt).Milliseconds(),
		Response: types.HTTPResponse{
			Status:      redirect.Status,
			StatusText:  redirect.StatusText,
			HTTPVersion: redirect.HTTPVersion,
			Headers:     headersToList(redirect.Headers),
			RedirectURL: redirect.URL,
			HeaderSize:  headersByteSize(redirect.Headers),
			Content:     types.HTTPContent{MimeType: redirect.MimeType},
		},
	}
	p.emitHTTP(ctx, entry.Envelope, entry)
}

// OnResponseReceived advances PENDING to PENDING_WITH_RESPONSE.
func (p *Pipeline) OnResponseReceived(ev ResponseReceived) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pend, ok := p.pending[ev.RequestID]
	if !ok {
		return
	}
	pend.state = httpPendingWithResponse
	pend.response = types.HTTPResponse{
		Status:      ev.Status,
		StatusText:  ev.StatusText,
		HTTPVersion: ev.HTTPVersion,
		Headers:     headersToList(ev.Headers),
		HeaderSize:  headersByteSize(ev.Headers),
		Content:     types.HTTPContent{MimeType: ev.MimeType},
	}
}

// OnLoadingFinished advances to FINALIZED and emits the entry. When the
// encoded body is within the 5 MiB ceiling, getBody is invoked to
// retrieve it; a retrieval failure is logged and the entry is still
// emitted with the body omitted (spec §7, TapBodyUnavailable).
func (p *Pipeline) OnLoadingFinished(ctx context.Context, ev LoadingFinished, getBody GetResponseBody) {
	p.mu.Lock()
	pend, ok := p.pending[ev.RequestID]
	if ok {
		delete(p.pending, ev.RequestID)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	now := p.now()
	pend.response.Content.Size = int(ev.EncodedDataLength)
	pend.response.BodySize = int(ev.EncodedDataLength)

	if ev.EncodedDataLength <= httpBodyCeiling && getBody != nil {
		body, b64, err := getBody(ev.RequestID)
		if err != nil {
			logBodyFetchFailed(ev.RequestID, err)
		} else if len(body) > 0 {
			applyResponseBody(&pend.response.Content, body, b64)
		}
	}

	entry := types.HTTPEntry{
		Envelope:     types.Envelope{TabID: pend.tabID, Hostname: pend.hostname, Timestamp: pend.requestedAt.UnixMilli()},
		StartedAt:    pend.requestedAt.UTC().Format(time.RFC3339Nano),
		RequestID:    ev.RequestID,
		Request:      pend.request,
		Response:     pend.response,
		ResourceType: pend.resourceType,
		ElapsedMS:    now.Sub(pend.requestedAt).Milliseconds(),
	}
	p.emitHTTP(ctx, entry.Envelope, entry)
}

// OnLoadingFailed advances to FAILED and emits whatever response data was
// available, with the tap's error text attached.
func (p *Pipeline) OnLoadingFailed(ctx context.Context, ev LoadingFailed) {
	p.mu.Lock()
	pend, ok := p.pending[ev.RequestID]
	if ok {
		delete(p.pending, ev.RequestID)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	now := p.now()
	pend.response.ErrorText = ev.ErrorText
	entry := types.HTTPEntry{
		Envelope:     types.Envelope{TabID: pend.tabID, Hostname: pend.hostname, Timestamp: pend.requestedAt.UnixMilli()},
		StartedAt:    pend.requestedAt.UTC().Format(time.RFC3339Nano),
		RequestID:    ev.RequestID,
		Request:      pend.request,
		Response:     pend.response,
		ResourceType: pend.resourceType,
		ElapsedMS:    now.Sub(pend.requestedAt).Milliseconds(),
	}
	p.emitHTTP(ctx, entry.Envelope, entry)
}

func applyResponseBody(content *types.HTTPContent, body []byte, alreadyBase64 bool) {
	raw := body
	if alreadyBase64 {
		decoded, err := base64.StdEncoding.DecodeString(string(body))
		if err == nil {
			raw = decoded
		}
	}
	trimmed, truncated, _, _ := truncateBytes(raw, httpBodyCeiling)
	if utf8.Valid(trimmed) {
		content.Text = string(trimmed)
	} else {
		content.Text = base64.StdEncoding.EncodeToString(trimmed)
		content.Encoding = "base64"
	}
	if truncated {
		content.Size = len(raw)
	}
}
