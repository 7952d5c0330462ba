package pkgrouter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fixedID struct{}

func (fixedID) Generate() string { return "cid-1" }

type streamResponse struct {
	body string
	err  error
}

func (s streamResponse) Stream(_ context.Context, w http.ResponseWriter) error {
	if s.err != nil {
		return s.err
	}
	w.Header().Set("Content-Type", "text/plain")
	_, err := w.Write([]byte(s.body))
	return err
}

func TestEndpointStreamsRawBody(t *testing.T) {
	router := NewRouter(fixedID{})
	router.GET("/file", func(ctx context.Context, r *http.Request) (any, error) {
		return streamResponse{body: "a,b\n1,2\n"}, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/file", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if got := rec.Body.String(); got != "a,b\n1,2\n" {
		t.Fatalf("unexpected body: %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/plain" {
		t.Fatalf("unexpected content type: %q", got)
	}
}

func TestEndpointStreamErrorUsesErrorCodec(t *testing.T) {
	router := NewRouter(fixedID{})
	router.GET("/file", func(ctx context.Context, r *http.Request) (any, error) {
		return streamResponse{err: errors.New("render blew up")}, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/file", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
