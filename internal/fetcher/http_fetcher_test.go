package fetcher

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	tests := []struct {
		name           string
		contentType    string
		responseBody   []byte
		statusCode     int
		ctxFunc        func() (context.Context, context.CancelFunc)
		expectedError  string
		expectedLength int
	}{
		{
			name:           "Success - Image",
			contentType:    "image/jpeg",
			responseBody:   []byte("fake-image-data"),
			statusCode:     http.StatusOK,
			expectedLength: 15,
		},
		{
			name:           "Success - Video",
			contentType:    "video/mp4",
			responseBody:   []byte("fake-video"),
			statusCode:     http.StatusOK,
			expectedLength: 10,
		},
		{
			name:          "Error - 404 Not Found",
			contentType:   "image/jpeg",
			statusCode:    http.StatusNotFound,
			expectedError: "unexpected status code: 404",
		},
		{
			name:          "Error - Unsupported Content Type",
			contentType:   "application/x-msdownload",
			responseBody:  []byte("MZ"),
			statusCode:    http.StatusOK,
			expectedError: "unsupported content type",
		},
		{
			name: "Error - Context Cancelled",
			ctxFunc: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx, cancel
			},
			expectedError: "context canceled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write(tt.responseBody)
			}))
			defer server.Close()

			var ctx context.Context
			var cancel context.CancelFunc
			if tt.ctxFunc != nil {
				ctx, cancel = tt.ctxFunc()
			} else {
				ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
			}
			defer cancel()

			fetcher := NewHTTPFetcher(zap.NewNop())
			data, err := fetcher.Fetch(ctx, server.URL)

			if tt.expectedError != "" {
				if err == nil {
					t.Fatalf("expected error containing '%s', got nil", tt.expectedError)
				}
				if !strings.Contains(err.Error(), tt.expectedError) {
					t.Errorf("expected error '%s' to contain '%s'", err.Error(), tt.expectedError)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(data) != tt.expectedLength {
				t.Errorf("expected data length %d, got %d", tt.expectedLength, len(data))
			}
		})
	}
}

func TestHTTPFetcher_SizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(bytes.Repeat([]byte("a"), 2048))
	}))
	defer server.Close()

	f := NewHTTPFetcher(zap.NewNop())
	f.inlineMax = 1024
	f.streamMax = 1024

	if _, err := f.Fetch(context.Background(), server.URL); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Fetch: expected ErrTooLarge, got %v", err)
	}

	var buf bytes.Buffer
	if _, err := f.FetchTo(context.Background(), server.URL, &buf); !errors.Is(err, ErrTooLarge) {
		t.Errorf("FetchTo: expected ErrTooLarge, got %v", err)
	}
}

func TestHTTPFetcher_FetchTo(t *testing.T) {
	payload := strings.Repeat("frame", 1000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "screend/") {
			t.Errorf("unexpected user agent %q", ua)
		}
		w.Header().Set("Content-Type", "video/webm")
		_, _ = w.Write([]byte(payload))
	}))
	defer server.Close()

	var buf bytes.Buffer
	n, err := NewHTTPFetcher(zap.NewNop()).FetchTo(context.Background(), server.URL, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != int64(len(payload)) || buf.String() != payload {
		t.Errorf("streamed %d bytes, content mismatch", n)
	}
}

func TestHTTPFetcher_RejectsNonHTTP(t *testing.T) {
	_, err := NewHTTPFetcher(zap.NewNop()).Fetch(context.Background(), "file:///etc/passwd")
	if err == nil || !strings.Contains(err.Error(), "unsupported protocol") {
		t.Fatalf("expected unsupported protocol error, got %v", err)
	}
}
