package resend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGetAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.URL.Path != "/emails/receiving/e1/attachments/a1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer re_test" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"a1","filename":"x.png","content_type":"image/png","download_url":"https://cdn/x","expires_at":"2026-01-01T01:00:00Z","size":1234}`))
	}))
	defer srv.Close()

	client, err := NewClient(Options{APIKey: "re_test", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	att, err := client.GetAttachment(context.Background(), "e1", "a1")
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	if att.Size != 1234 || att.DownloadURL != "https://cdn/x" || att.ContentType != "image/png" {
		t.Fatalf("unexpected attachment %+v", att)
	}
}

func TestGetAttachmentNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	}))
	defer srv.Close()

	client, _ := NewClient(Options{APIKey: "re_test", BaseURL: srv.URL})
	_, err := client.GetAttachment(context.Background(), "e1", "missing")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || !strings.Contains(apiErr.Body, "not found") {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestGetAttachmentRequiresDownloadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"a1"}`))
	}))
	defer srv.Close()

	client, _ := NewClient(Options{APIKey: "re_test", BaseURL: srv.URL})
	if _, err := client.GetAttachment(context.Background(), "e1", "a1"); err == nil {
		t.Fatalf("expected error for missing download url")
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("download must not carry the api key")
		}
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	client, _ := NewClient(Options{APIKey: "re_test"})
	data, err := client.Download(context.Background(), srv.URL+"/x.png")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected body %q", data)
	}
}

func TestDownloadEnforcesSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 32)))
	}))
	defer srv.Close()

	client, _ := NewClient(Options{APIKey: "re_test", MaxBytes: 16})
	if _, err := client.Download(context.Background(), srv.URL); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestDownloadNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client, _ := NewClient(Options{APIKey: "re_test"})
	_, err := client.Download(context.Background(), srv.URL)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 APIError, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Options{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
