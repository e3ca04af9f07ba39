package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Options{APIKey: "secret", BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestTryOnSendsBothImages(t *testing.T) {
	person := pngBytes(t, 4, 4)
	clothing := []byte("\xff\xd8\xffclothing")
	result := pngBytes(t, 6, 8)

	var got geminiGenerateContentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-flash-image:generateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "secret" {
			t.Errorf("api key header missing")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{
					map[string]any{"text": "Here you go"},
					map[string]any{"inlineData": map[string]any{
						"mimeType": "image/png",
						"data":     base64.StdEncoding.EncodeToString(result),
					}},
				}},
			}},
		})
	}))
	defer srv.Close()

	asset, err := newTestClient(t, srv).TryOn(context.Background(), TryOnRequest{
		Person:   InputImage{MimeType: "image/png", Data: person},
		Clothing: InputImage{Data: clothing},
	})
	if err != nil {
		t.Fatalf("TryOn: %v", err)
	}
	if !bytes.Equal(asset.Data, result) || asset.Format != "image/png" {
		t.Fatalf("unexpected asset: format=%q len=%d", asset.Format, len(asset.Data))
	}
	if asset.Width != 6 || asset.Height != 8 {
		t.Fatalf("dimensions = %dx%d", asset.Width, asset.Height)
	}

	if len(got.Contents) != 1 || len(got.Contents[0].Parts) != 3 {
		t.Fatalf("unexpected request contents: %+v", got.Contents)
	}
	parts := got.Contents[0].Parts
	if parts[0].Text != DefaultTryOnPrompt {
		t.Fatalf("prompt = %q", parts[0].Text)
	}
	if parts[1].InlineData.Data != base64.StdEncoding.EncodeToString(person) {
		t.Fatalf("person image not sent first")
	}
	if parts[2].InlineData.MimeType != "image/jpeg" {
		t.Fatalf("clothing mime = %q, want sniffed image/jpeg", parts[2].InlineData.MimeType)
	}
	if got.GenerationConfig == nil || strings.Join(got.GenerationConfig.ResponseModalities, ",") != "TEXT,IMAGE" {
		t.Fatalf("unexpected generation config: %+v", got.GenerationConfig)
	}
}

func TestTryOnErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		wantIs  error
	}{
		{name: "api error", status: http.StatusBadRequest, body: `{"error":{"code":400,"message":"Image too small"}}`, wantErr: "gemini status 400: Image too small"},
		{name: "plain error", status: http.StatusBadGateway, body: "upstream down", wantErr: "gemini status 502: upstream down"},
		{name: "text only", status: http.StatusOK, body: `{"candidates":[{"content":{"parts":[{"text":"I cannot do that"}]}}]}`, wantErr: "I cannot do that", wantIs: ErrNoImage},
		{name: "blocked", status: http.StatusOK, body: `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`, wantErr: "SAFETY", wantIs: ErrNoImage},
		{name: "empty", status: http.StatusOK, body: `{}`, wantIs: ErrNoImage},
		{name: "bad json", status: http.StatusOK, body: `{`, wantErr: "decode gemini response"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).TryOn(context.Background(), TryOnRequest{
				Person:   InputImage{Data: []byte("p")},
				Clothing: InputImage{Data: []byte("c")},
			})
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.wantErr != "" && !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %q, want substring %q", err, tc.wantErr)
			}
			if tc.wantIs != nil && !errors.Is(err, tc.wantIs) {
				t.Fatalf("err = %v, want %v", err, tc.wantIs)
			}
		})
	}
}

func TestTryOnDownloadsFileData(t *testing.T) {
	result := pngBytes(t, 2, 2)
	mux := http.NewServeMux()
	mux.HandleFunc("/files/result", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(result)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"fileData":{"fileUri":"files/result"}}]}}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	asset, err := newTestClient(t, srv).TryOn(context.Background(), TryOnRequest{
		Person:   InputImage{Data: []byte("p")},
		Clothing: InputImage{Data: []byte("c")},
	})
	if err != nil {
		t.Fatalf("TryOn: %v", err)
	}
	if !bytes.Equal(asset.Data, result) || asset.Format != "image/png" {
		t.Fatalf("unexpected asset %q", asset.Format)
	}
	if asset.URL != "files/result" {
		t.Fatalf("url = %q", asset.URL)
	}
}

func TestTryOnKeepsKeyOffForeignHosts(t *testing.T) {
	result := pngBytes(t, 3, 3)
	var leaked string
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		leaked = r.Header.Get("x-goog-api-key")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(result)
	}))
	defer files.Close()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"fileData":{"fileUri":"`+files.URL+`/out.png"}}]}}]}`)
	}))
	defer api.Close()

	asset, err := newTestClient(t, api).TryOn(context.Background(), TryOnRequest{
		Person:   InputImage{Data: []byte("p")},
		Clothing: InputImage{Data: []byte("c")},
	})
	if err != nil {
		t.Fatalf("TryOn: %v", err)
	}
	if !bytes.Equal(asset.Data, result) {
		t.Fatalf("unexpected asset data")
	}
	if leaked != "" {
		t.Fatalf("api key sent to file host: %q", leaked)
	}
}

func TestFirstTextTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("ж", 250)
	resp := geminiGenerateContentResponse{Candidates: []geminiCandidate{{Content: geminiContent{Parts: []geminiPart{{Text: long}}}}}}
	got := firstText(resp)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated text is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n != 200 {
		t.Fatalf("rune count = %d, want 200", n)
	}
	if truncateRunes("short", 200) != "short" {
		t.Fatalf("short text changed")
	}
}

func TestTryOnRequiresConfiguration(t *testing.T) {
	called := false
	client, err := NewClient(Options{HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		called = true
		return nil, errors.New("unexpected call")
	})}})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.Configured() {
		t.Fatalf("client without key reports configured")
	}
	if client.Model() != "gemini-2.5-flash-image" {
		t.Fatalf("default model = %q", client.Model())
	}
	if _, err := client.TryOn(context.Background(), TryOnRequest{Person: InputImage{Data: []byte("p")}, Clothing: InputImage{Data: []byte("c")}}); err == nil {
		t.Fatalf("expected error without api key")
	}
	if called {
		t.Fatalf("http transport used without api key")
	}
}

func TestTryOnTransportErrorAndCancellation(t *testing.T) {
	client, err := NewClient(Options{APIKey: "k", HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("boom")
	})}})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	req := TryOnRequest{Person: InputImage{Data: []byte("p")}, Clothing: InputImage{Data: []byte("c")}}
	if _, err := client.TryOn(context.Background(), req); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("transport err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.TryOn(ctx, req); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled err = %v", err)
	}
	if _, err := client.TryOn(context.Background(), TryOnRequest{Person: InputImage{Data: []byte("p")}}); err == nil {
		t.Fatalf("expected error for missing clothing")
	}
}
