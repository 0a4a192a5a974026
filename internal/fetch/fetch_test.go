package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetch_DirectSuccess(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want Bearer tok", got)
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 content"))
	}))
	defer srv.Close()

	c := New("tok", 5*time.Second)
	data, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "%PDF-1.4 content" {
		t.Errorf("unexpected body: %q", data)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("200 response triggered %d requests, want exactly 1", n)
	}
}

func TestFetch_FollowsSingleRedirect(t *testing.T) {
	var mirrorHits int32
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&mirrorHits, 1)
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("redirect hop lost Authorization header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("file bytes"))
	}))
	defer mirror.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, mirror.URL, http.StatusFound)
	}))
	defer srv.Close()

	c := New("tok", 5*time.Second)
	data, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "file bytes" {
		t.Errorf("unexpected body: %q", data)
	}
	if n := atomic.LoadInt32(&mirrorHits); n != 1 {
		t.Errorf("mirror hit %d times, want exactly 1", n)
	}
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New("tok", 5*time.Second)
	if _, err := c.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 403 response")
	} else if !strings.Contains(err.Error(), "403") {
		t.Errorf("error does not name the status: %v", err)
	}
}

func TestFetch_RejectsHTMLPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>Sign in</body></html>"))
	}))
	defer srv.Close()

	c := New("tok", 5*time.Second)
	_, err := c.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrHTMLPayload) {
		t.Fatalf("err = %v, want ErrHTMLPayload", err)
	}
}

func TestFetch_RedirectWithoutLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	c := New("tok", 5*time.Second)
	if _, err := c.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for redirect without Location")
	}
}
