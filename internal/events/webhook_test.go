package events_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/events"
)

func TestWebhookNotifierSignsDeliveries(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	var got struct {
		header http.Header
		body   []byte
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.header = r.Header.Clone()
		got.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := &events.WebhookNotifier{URL: srv.URL, Secret: "s3cret", Client: srv.Client(), Now: func() time.Time { return at }}
	ev := events.Event{ID: "ev-1", Topic: events.TopicOrderRecalculated, AggregateID: "o-1", Payload: json.RawMessage(`{"version":2}`), OccurredAt: at}
	require.NoError(t, n.Notify(context.Background(), ev))

	ts := at.Unix()
	require.Equal(t, strconv.FormatInt(ts, 10), got.header.Get("X-Timestamp"))
	require.Equal(t, "ev-1", got.header.Get("X-Event-ID"))
	require.Equal(t, events.Signature("s3cret", ts, "ev-1", got.body), got.header.Get("X-Signature"))

	var decoded events.Event
	require.NoError(t, json.Unmarshal(got.body, &decoded))
	require.Equal(t, "o-1", decoded.AggregateID)
	require.JSONEq(t, `{"version":2}`, string(decoded.Payload))
}

func TestWebhookNotifierFiltersTopicsAndReportsFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := &events.WebhookNotifier{URL: srv.URL, Client: srv.Client(), Topics: []string{events.TopicOrderFailed}}
	require.NoError(t, n.Notify(context.Background(), events.Event{ID: "ev-1", Topic: events.TopicOrderRecalculated}))
	require.Zero(t, calls)

	err := n.Notify(context.Background(), events.Event{ID: "ev-2", Topic: events.TopicOrderFailed})
	require.ErrorContains(t, err, "status 502")
	require.Equal(t, 1, calls)
}

func TestNewWebhookNotifierValidatesURL(t *testing.T) {
	_, err := events.NewWebhookNotifier("http://example.com/hook", "", time.Second)
	require.Error(t, err)
	_, err = events.NewWebhookNotifier("ftp://example.com/hook", "", time.Second)
	require.Error(t, err)
	n, err := events.NewWebhookNotifier("https://example.com/hook", "k", time.Second)
	require.NoError(t, err)
	require.NotNil(t, n.Client)
}
