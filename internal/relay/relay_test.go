package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBrokerPublishReachesSubscriber(t *testing.T) {
	b := NewBroker()
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	b.Publish(Event{Feed: FeedCapture, Payload: `{"pendingHttp":1}`})

	select {
	case evt := <-ch:
		if evt.Feed != FeedCapture {
			t.Fatalf("feed = %q, want %q", evt.Feed, FeedCapture)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestSSEHandlerFiltersToRequestedFeeds(t *testing.T) {
	broker := NewBroker()
	srv := httptest.NewServer(SSEHandler(broker))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?feeds="+FeedBuffer, nil)
	if err != nil {
		t.Fatalf("NewRequestWithContext() = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() = %v", err)
	}
	defer resp.Body.Close()

	for broker.ClientCount() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("subscriber never registered")
		case <-time.After(10 * time.Millisecond):
		}
	}
	broker.Publish(Event{Feed: FeedCapture, Payload: "1"})
	broker.Publish(Event{Feed: FeedBuffer, Payload: "2"})

	buf := make([]byte, 256)
	n, _ := resp.Body.Read(buf)
	got := string(buf[:n])
	if strings.Contains(got, "event: "+FeedCapture) {
		t.Fatalf("expected capture feed filtered out, got %q", got)
	}
	if !strings.Contains(got, "event: "+FeedBuffer) {
		t.Fatalf("expected buffer feed present, got %q", got)
	}
}
