package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/leomaro7/kb-chat/internal/config"
	chatservice "github.com/leomaro7/kb-chat/internal/service/chat"
	"github.com/leomaro7/kb-chat/internal/service/kb"
)

type queryFunc func(ctx context.Context, in kb.QueryInput) (*kb.Stream, error)

func (f queryFunc) Query(ctx context.Context, in kb.QueryInput) (*kb.Stream, error) {
	return f(ctx, in)
}

func chunkStream(chunks ...string) *kb.Stream {
	i := 0
	return kb.NewStream(func() (string, error) {
		if i >= len(chunks) {
			return "", io.EOF
		}
		c := chunks[i]
		i++
		return c, nil
	}, func() error { return nil })
}

func testKBConfig() config.KBConfig {
	return config.KBConfig{
		Temperature: 0.1,
		TopP:        0.9,
		DocVersions: []string{"2", "1"},
	}
}

func setup(q Querier) (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService()
	h := New(q, chatSvc, testKBConfig())

	r := chi.NewRouter()
	r.Get("/stream/{sessionID}", h.HandleStream)
	return r, chatSvc
}

func streamURL(sessionID, message string, params map[string]string) string {
	q := url.Values{}
	q.Set("message", message)
	for k, v := range params {
		q.Set(k, v)
	}
	return "/stream/" + sessionID + "?" + q.Encode()
}

func TestHandleStreamRelaysDeltasAndCommitsExchange(t *testing.T) {
	var captured kb.QueryInput
	q := queryFunc(func(_ context.Context, in kb.QueryInput) (*kb.Stream, error) {
		captured = in
		return chunkStream("The answer", " is 42."), nil
	})
	r, chatSvc := setup(q)

	session, _ := chatSvc.CreateSession(context.Background())

	req := httptest.NewRequest(http.MethodGet, streamURL(session.ID, "what is the answer?", map[string]string{
		"ver": "1", "temperature": "0.5", "top_p": "0.7",
	}), nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	body := resp.Body.String()
	for _, want := range []string{`"event":"start"`, `"event":"delta"`, `"event":"message"`, `"event":"end"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in body:\n%s", want, body)
		}
	}

	if captured.DocVersion != "1" {
		t.Fatalf("unexpected doc version: %s", captured.DocVersion)
	}
	if captured.Temperature != 0.5 || captured.TopP != 0.7 {
		t.Fatalf("per-request sampling not forwarded: %v / %v", captured.Temperature, captured.TopP)
	}

	transcript, err := chatSvc.Transcript(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if len(transcript) != 2 {
		t.Fatalf("expected committed exchange, got %d messages", len(transcript))
	}
	if transcript[1].Content != "The answer is 42." {
		t.Fatalf("unexpected stored answer: %q", transcript[1].Content)
	}
}

func TestHandleStreamDefaultsSamplingFromConfig(t *testing.T) {
	var captured kb.QueryInput
	q := queryFunc(func(_ context.Context, in kb.QueryInput) (*kb.Stream, error) {
		captured = in
		return chunkStream("ok"), nil
	})
	r, chatSvc := setup(q)

	session, _ := chatSvc.CreateSession(context.Background())

	req := httptest.NewRequest(http.MethodGet, streamURL(session.ID, "hello", nil), nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if captured.Temperature != 0.1 || captured.TopP != 0.9 {
		t.Fatalf("expected config defaults, got %v / %v", captured.Temperature, captured.TopP)
	}
	if captured.DocVersion != "2" {
		t.Fatalf("expected default version, got %s", captured.DocVersion)
	}
}

func TestHandleStreamQueryFailureLeavesTranscriptUntouched(t *testing.T) {
	q := queryFunc(func(_ context.Context, _ kb.QueryInput) (*kb.Stream, error) {
		return nil, errors.New("throttled")
	})
	r, chatSvc := setup(q)

	session, _ := chatSvc.CreateSession(context.Background())

	req := httptest.NewRequest(http.MethodGet, streamURL(session.ID, "hello", nil), nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	body := resp.Body.String()
	if !strings.Contains(body, `"event":"error"`) {
		t.Fatalf("expected error event, got:\n%s", body)
	}
	if strings.Contains(body, "throttled") {
		t.Fatal("internal error detail must not reach the client")
	}

	transcript, err := chatSvc.Transcript(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if len(transcript) != 0 {
		t.Fatalf("transcript must stay unmodified on failure, got %d messages", len(transcript))
	}
}

func TestHandleStreamMidStreamFailureLeavesTranscriptUntouched(t *testing.T) {
	i := 0
	q := queryFunc(func(_ context.Context, _ kb.QueryInput) (*kb.Stream, error) {
		return kb.NewStream(func() (string, error) {
			if i == 0 {
				i++
				return "partial", nil
			}
			return "", errors.New("connection reset")
		}, func() error { return nil }), nil
	})
	r, chatSvc := setup(q)

	session, _ := chatSvc.CreateSession(context.Background())

	req := httptest.NewRequest(http.MethodGet, streamURL(session.ID, "hello", nil), nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	body := resp.Body.String()
	if !strings.Contains(body, `"event":"error"`) {
		t.Fatalf("expected error event, got:\n%s", body)
	}

	transcript, _ := chatSvc.Transcript(context.Background(), session.ID)
	if len(transcript) != 0 {
		t.Fatalf("partial answers must not be committed, got %d messages", len(transcript))
	}
}

func TestHandleStreamRequiresMessage(t *testing.T) {
	r, chatSvc := setup(queryFunc(func(_ context.Context, _ kb.QueryInput) (*kb.Stream, error) {
		t.Fatal("querier must not be called")
		return nil, nil
	}))

	session, _ := chatSvc.CreateSession(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/stream/"+session.ID, nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestHandleStreamRejectsUnknownVersion(t *testing.T) {
	r, chatSvc := setup(queryFunc(func(_ context.Context, _ kb.QueryInput) (*kb.Stream, error) {
		t.Fatal("querier must not be called")
		return nil, nil
	}))

	session, _ := chatSvc.CreateSession(context.Background())

	req := httptest.NewRequest(http.MethodGet, streamURL(session.ID, "hello", map[string]string{"ver": "9"}), nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestHandleStreamRejectsOutOfRangeTemperature(t *testing.T) {
	r, chatSvc := setup(queryFunc(func(_ context.Context, _ kb.QueryInput) (*kb.Stream, error) {
		t.Fatal("querier must not be called")
		return nil, nil
	}))

	session, _ := chatSvc.CreateSession(context.Background())

	req := httptest.NewRequest(http.MethodGet, streamURL(session.ID, "hello", map[string]string{"temperature": "1.5"}), nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestHandleStreamUnknownSession(t *testing.T) {
	r, _ := setup(queryFunc(func(_ context.Context, _ kb.QueryInput) (*kb.Stream, error) {
		t.Fatal("querier must not be called")
		return nil, nil
	}))

	req := httptest.NewRequest(http.MethodGet, streamURL("missing", "hello", nil), nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
