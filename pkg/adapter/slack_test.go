package adapter_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adforge/copybot/pkg/adapter"
	"github.com/m-mizutani/gt"
)

func TestSlackThreadHistoryKeepsLatest(t *testing.T) {
	pages := map[string]struct {
		from, to int
		next     string
	}{
		"":   {1, 3, "c2"},
		"c2": {4, 6, "c3"},
		"c3": {7, 8, ""},
	}

	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Path, "/conversations.replies")
		gt.NoError(t, r.ParseForm())
		gt.Equal(t, r.FormValue("ts"), "100.1")

		cursor := r.FormValue("cursor")
		calls = append(calls, cursor)
		p, ok := pages[cursor]
		gt.True(t, ok)

		var msgs []map[string]string
		for i := p.from; i <= p.to; i++ {
			msgs = append(msgs, map[string]string{"type": "message", "user": "U1", "text": fmt.Sprintf("turn %d", i), "ts": fmt.Sprintf("100.%d", i)})
		}
		w.Header().Set("Content-Type", "application/json")
		gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"ok":                true,
			"messages":          msgs,
			"has_more":          p.next != "",
			"response_metadata": map[string]string{"next_cursor": p.next},
		}))
	}))
	defer srv.Close()

	client := adapter.NewSlack("xoxb-test", adapter.WithSlackAPIURL(srv.URL+"/"), adapter.WithSlackRateLimit(1000, 10))
	history, err := client.ThreadHistory(context.Background(), "C1", "100.1", 4)
	gt.NoError(t, err)

	gt.A(t, calls).Length(3)
	gt.A(t, history).Length(4)
	gt.Equal(t, history[0].Text, "turn 5")
	gt.Equal(t, history[3].Text, "turn 8")
	gt.Equal(t, history[3].Timestamp, "100.8")
}
