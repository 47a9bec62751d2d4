package server_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/policy"
	"github.com/adforge/copybot/pkg/repository"
	"github.com/adforge/copybot/pkg/server"
	"github.com/m-mizutani/gt"
)

const secret = "8f742231b10e8888abcd99yyyzzz85a5"

type staticRouter struct{}

func (staticRouter) Route(ctx context.Context, ev *model.EventContext) (*model.Route, error) {
	return &model.Route{Agent: model.AgentBrandContext}, nil
}

type failingRouter struct {
	err error
}

func (r failingRouter) Route(ctx context.Context, ev *model.EventContext) (*model.Route, error) {
	if r.err == nil {
		panic("router exploded")
	}
	return nil, r.err
}

type recordingDispatcher struct {
	mu       sync.Mutex
	events   []*model.EventContext
	failures []error
}

func (d *recordingDispatcher) ReportFailure(ctx context.Context, ev *model.EventContext, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, err)
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, ev *model.EventContext, route *model.Route) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

func sign(t *testing.T, req *http.Request, body string, at time.Time) {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	_, err := mac.Write([]byte("v0:" + ts + ":" + body))
	gt.NoError(t, err)
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
}

func request(t *testing.T, body string, signed bool) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signed {
		sign(t, req, body, time.Now())
	}
	return req
}

func messageBody(eventID, channel string) string {
	raw, _ := json.Marshal(map[string]any{
		"type":     "event_callback",
		"team_id":  "T1",
		"event_id": eventID,
		"authorizations": []map[string]any{
			{"team_id": "T1", "user_id": "UBOT", "is_bot": true},
		},
		"event": map[string]any{
			"type":         "message",
			"user":         "U1",
			"text":         "our new promo starts monday",
			"channel":      channel,
			"channel_type": "channel",
			"ts":           "100.1",
		},
	})
	return string(raw)
}

func TestURLVerification(t *testing.T) {
	srv := server.New(secret, repository.NewMemory(), staticRouter{}, &recordingDispatcher{})
	body := `{"type":"url_verification","challenge":"abc123"}`

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, request(t, body, true))
	gt.Equal(t, rec.Code, http.StatusOK)

	var resp map[string]string
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	gt.Equal(t, resp["challenge"], "abc123")
}

func TestRejectsBadSignature(t *testing.T) {
	disp := &recordingDispatcher{}
	srv := server.New(secret, repository.NewMemory(), staticRouter{}, disp)
	body := messageBody("Ev1", "C1")

	t.Run("unsigned", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, request(t, body, false))
		gt.Equal(t, rec.Code, http.StatusUnauthorized)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		req := request(t, body, false)
		sign(t, req, body, time.Now().Add(-10*time.Minute))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		gt.Equal(t, rec.Code, http.StatusUnauthorized)
	})

	t.Run("tampered body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(messageBody("Ev1", "C2")))
		sign(t, req, body, time.Now())
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		gt.Equal(t, rec.Code, http.StatusUnauthorized)
	})

	srv.Wait()
	gt.Equal(t, disp.count(), 0)
}

func TestDispatchesOnceForRedelivery(t *testing.T) {
	disp := &recordingDispatcher{}
	srv := server.New(secret, repository.NewMemory(), staticRouter{}, disp)
	body := messageBody("Ev1", "C1")

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, request(t, body, true))
		gt.Equal(t, rec.Code, http.StatusOK)
	}
	srv.Wait()

	gt.Equal(t, disp.count(), 1)
	gt.Equal(t, disp.events[0].ChannelID, "C1")
	gt.Equal(t, disp.events[0].DeliveryID, "Ev1")
}

func TestRoutingFailureIsReported(t *testing.T) {
	testCases := map[string]server.Router{
		"router error": failingRouter{err: errors.New("firestore unavailable")},
		"router panic": failingRouter{},
	}

	for name, router := range testCases {
		t.Run(name, func(t *testing.T) {
			disp := &recordingDispatcher{}
			srv := server.New(secret, repository.NewMemory(), router, disp)
			body := messageBody("Ev1", "C1")

			for i := 0; i < 2; i++ {
				rec := httptest.NewRecorder()
				srv.Handler().ServeHTTP(rec, request(t, body, true))
				gt.Equal(t, rec.Code, http.StatusOK)
			}
			srv.Wait()

			gt.Equal(t, disp.count(), 0)
			gt.A(t, disp.failures).Length(1)
		})
	}
}

func TestAdmissionPolicy(t *testing.T) {
	ctx := context.Background()
	adm, err := policy.FromSource(ctx, "admission.rego", `package admission

default allow := true

allow := false if input.channel_id == "CMUTED"
`)
	gt.NoError(t, err)

	disp := &recordingDispatcher{}
	srv := server.New(secret, repository.NewMemory(), staticRouter{}, disp, server.WithAdmission(adm))

	for _, body := range []string{messageBody("Ev1", "CMUTED"), messageBody("Ev2", "C1")} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, request(t, body, true))
		gt.Equal(t, rec.Code, http.StatusOK)
	}
	srv.Wait()

	gt.Equal(t, disp.count(), 1)
	gt.Equal(t, disp.events[0].ChannelID, "C1")
}

func TestIgnoredEventsAreAcknowledged(t *testing.T) {
	disp := &recordingDispatcher{}
	srv := server.New(secret, repository.NewMemory(), staticRouter{}, disp)
	body := `{"type":"event_callback","event_id":"Ev9","event":{"type":"message","subtype":"channel_join","channel":"C1","ts":"1.1"}}`

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, request(t, body, true))
	gt.Equal(t, rec.Code, http.StatusOK)
	srv.Wait()
	gt.Equal(t, disp.count(), 0)
}

func TestHealthz(t *testing.T) {
	srv := server.New(secret, repository.NewMemory(), staticRouter{}, &recordingDispatcher{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	gt.Equal(t, rec.Code, http.StatusOK)
}
