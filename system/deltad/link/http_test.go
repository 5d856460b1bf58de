package link

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/signadot/deltalog/system/deltad/api"
)

func writeMsgpack(t *testing.T, w http.ResponseWriter, status int, v any) {
	d, err := msgpack.Marshal(v)
	if err != nil {
		t.Errorf("marshal: %v", err)
	}
	w.Header().Set("Content-Type", "application/x-msgpack")
	w.WriteHeader(status)
	w.Write(d)
}

func TestHTTP_Transient(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	h, err := NewHTTP(url, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.GetCurrentVersion(context.Background(), api.NewId())
	if !errors.Is(err, api.ErrTransient) {
		t.Fatalf("error = %v, want transient", err)
	}
	if !api.Retryable(err) {
		t.Errorf("Retryable(%v) = false", err)
	}
}

func TestHTTP_Timeout(t *testing.T) {
	block := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer ts.Close()
	defer close(block)

	h, err := NewHTTP(ts.URL, &http.Client{Timeout: 50 * time.Millisecond}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.GetCurrentVersion(context.Background(), api.NewId()); !errors.Is(err, api.ErrTransient) {
		t.Errorf("error = %v, want transient", err)
	}
}

func TestHTTP_StatusErrors(t *testing.T) {
	ds := api.NewId()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/$/datasets/" + ds.String() + "/version":
			writeMsgpack(t, w, http.StatusNotFound, api.NewError(api.ErrCodeNotFound, "no such dataset"))
		case "/$/datasets/" + ds.String() + "/patch/7":
			writeMsgpack(t, w, http.StatusNotFound, api.NewError(api.ErrCodeNoPatch, "no patch"))
		case "/$/datasets/" + ds.String():
			writeMsgpack(t, w, http.StatusNotFound, api.NewError(api.ErrCodeNotFound, "no such dataset"))
		default:
			http.Error(w, "upstream down", http.StatusBadGateway)
		}
	}))
	defer ts.Close()

	ctx := context.Background()
	h, err := NewHTTP(ts.URL, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = h.GetCurrentVersion(ctx, ds)
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound {
		t.Fatalf("error = %v, want status error 404", err)
	}
	if !errors.Is(err, api.ErrNotFound) {
		t.Errorf("errors.Is(%v, ErrNotFound) = false", err)
	}

	p, err := h.FetchVersion(ctx, ds, 7)
	if p != nil || err != nil {
		t.Errorf("FetchVersion() = %v, %v, want nil, nil", p, err)
	}

	desc, err := h.GetDescription(ctx, ds)
	if desc != nil || err != nil {
		t.Errorf("GetDescription() = %v, %v, want nil, nil", desc, err)
	}

	if _, err := h.Descriptions(ctx); !errors.Is(err, api.ErrTransient) {
		t.Errorf("502 without body: error = %v", err)
	}
}

func TestHTTP_RequiresRegistration(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer ts.Close()
	h, err := NewHTTP(ts.URL, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.NewDataSource(context.Background(), "a", ""); !errors.Is(err, api.ErrNotConnected) {
		t.Errorf("NewDataSource() error = %v", err)
	}
	h.Close()
	if err := h.Ping(context.Background()); !errors.Is(err, api.ErrNotConnected) {
		t.Errorf("Ping() after Close error = %v", err)
	}
	if calls != 0 {
		t.Errorf("%d requests reached the server", calls)
	}
}

func TestNewHTTP_BadURL(t *testing.T) {
	for _, u := range []string{"localhost:1066", "ftp://x", "http://[::1"} {
		if _, err := NewHTTP(u, nil, nil); err == nil {
			t.Errorf("NewHTTP(%q) accepted", u)
		}
	}
}
