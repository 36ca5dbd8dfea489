package compressor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/imgshrink/internal/config"
)

// fakeTinify mimics the shrink endpoint and serves results from /output/1
type fakeTinify struct {
	key        string
	result     []byte
	useJSONURL bool
	uploaded   []byte
}

func (f *fakeTinify) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/shrink", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "api" || pass != f.key {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Unauthorized","message":"Credentials are invalid."}`))
			return
		}
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		buf, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read upload: %v", err)
		}
		f.uploaded = buf

		outputURL := "http://" + r.Host + "/output/1"
		if !f.useJSONURL {
			w.Header().Set("Location", outputURL)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"output":{"size":5,"type":"image/png","url":"` + outputURL + `"}}`))
	})
	mux.HandleFunc("/output/1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(f.result)
	})
	return mux
}

func newTestTinify(t *testing.T, fake *fakeTinify) *TinifyClient {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	keyFile := filepath.Join(t.TempDir(), "tinify.key")
	if err := os.WriteFile(keyFile, []byte(fake.key+"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	return NewTinifyClient(config.CompressorConfig{
		APIURL:     srv.URL + "/shrink",
		APIKeyFile: keyFile,
		Timeout:    config.Duration{Duration: 5 * time.Second},
	})
}

func TestTinifyClient_Compress(t *testing.T) {
	for _, useJSON := range []bool{false, true} {
		fake := &fakeTinify{key: "secret", result: []byte("small"), useJSONURL: useJSON}
		client := newTestTinify(t, fake)

		out, err := client.Compress(context.Background(), "a.png", []byte("large input"))
		if err != nil {
			t.Fatalf("json=%v: %v", useJSON, err)
		}
		if string(out) != "small" {
			t.Errorf("json=%v: expected small, got %q", useJSON, string(out))
		}
		if string(fake.uploaded) != "large input" {
			t.Errorf("json=%v: unexpected upload %q", useJSON, string(fake.uploaded))
		}
	}
}

func TestTinifyClient_BadKey(t *testing.T) {
	fake := &fakeTinify{key: "secret"}
	client := newTestTinify(t, fake)
	client.apiKey = "wrong"

	_, err := client.Compress(context.Background(), "a.png", []byte("data"))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for rejected credentials, got %v", err)
	}
}

func TestTinifyClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		_, _ = w.Write([]byte(`{"error":"Unsupported media type","message":"File type is not supported."}`))
	}))
	defer srv.Close()

	t.Setenv(APIKeyEnv, "env-key")
	client := NewTinifyClient(config.CompressorConfig{APIURL: srv.URL})

	_, err := client.Compress(context.Background(), "a.gif", []byte("GIF89a"))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Errorf("per-file API error must not mark the backend unavailable: %v", err)
	}
}

func TestTinifyClient_Available(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	client := NewTinifyClient(config.CompressorConfig{APIURL: config.DefaultAPIURL})
	if err := client.Available(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable without a key, got %v", err)
	}

	t.Setenv(APIKeyEnv, "from-env")
	if err := client.Available(context.Background()); err != nil {
		t.Errorf("expected key from environment, got %v", err)
	}
	if client.apiKey != "from-env" {
		t.Errorf("expected key from-env, got %q", client.apiKey)
	}

	missingFile := NewTinifyClient(config.CompressorConfig{APIKeyFile: filepath.Join(t.TempDir(), "none")})
	if err := missingFile.Available(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for missing key file, got %v", err)
	}
}

func TestReadLimited(t *testing.T) {
	data, err := readLimited(strings.NewReader("12345"), 5)
	if err != nil || string(data) != "12345" {
		t.Errorf("expected body at the limit to pass, got %q (%v)", data, err)
	}

	if _, err := readLimited(strings.NewReader("123456"), 5); err == nil {
		t.Error("expected error for body over the limit, got nil")
	}
}
