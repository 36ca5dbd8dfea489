package compressor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/schaermu/imgshrink/internal/config"
)

// APIKeyEnv is consulted when no key file is configured
const APIKeyEnv = "TINIFY_API_KEY"

// maxResponseSize caps downloads from the API
const maxResponseSize = 256 << 20

// TinifyClient implements Compressor against the Tinify shrink API
type TinifyClient struct {
	url     string
	keyFile string
	apiKey  string
	client  *http.Client
}

// NewTinifyClient creates a client for the endpoint configured in cfg
func NewTinifyClient(cfg config.CompressorConfig) *TinifyClient {
	return &TinifyClient{
		url:     cfg.APIURL,
		keyFile: cfg.APIKeyFile,
		client:  &http.Client{Timeout: cfg.Timeout.Duration},
	}
}

// shrinkResponse is the JSON body returned by the shrink endpoint
type shrinkResponse struct {
	Output struct {
		Size int64  `json:"size"`
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"output"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Name returns the backend name
func (c *TinifyClient) Name() string {
	return "tinify"
}

// Available resolves the API key from the key file or the environment
func (c *TinifyClient) Available(_ context.Context) error {
	key, err := c.resolveKey()
	if err != nil {
		return err
	}
	c.apiKey = key
	return nil
}

func (c *TinifyClient) resolveKey() (string, error) {
	if c.keyFile != "" {
		data, err := os.ReadFile(c.keyFile)
		if err != nil {
			return "", fmt.Errorf("%w: failed to read API key file: %v", ErrUnavailable, err)
		}
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("%w: API key file %s is empty", ErrUnavailable, c.keyFile)
		}
		return key, nil
	}

	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w: no API key (set compressor.api_key_file or %s)", ErrUnavailable, APIKeyEnv)
}

// Compress uploads src and downloads the optimized result
func (c *TinifyClient) Compress(ctx context.Context, _ string, src []byte) ([]byte, error) {
	if c.apiKey == "" {
		if err := c.Available(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth("api", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shrink request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := readLimited(resp.Body, maxResponseSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read shrink response: %w", err)
	}

	var shrink shrinkResponse
	_ = json.Unmarshal(body, &shrink)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, shrink)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		location = shrink.Output.URL
	}
	if location == "" {
		return nil, fmt.Errorf("shrink response carries no output location")
	}

	return c.download(ctx, location)
}

// download fetches the compressed image from the output location
func (c *TinifyClient) download(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth("api", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := readLimited(resp.Body, maxResponseSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read download: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var body shrinkResponse
		_ = json.Unmarshal(data, &body)
		return nil, apiError(resp.StatusCode, body)
	}

	return data, nil
}

// readLimited reads r fully, failing instead of truncating past limit bytes
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response exceeds %d bytes", limit)
	}
	return data, nil
}

func apiError(status int, body shrinkResponse) error {
	err := fmt.Errorf("tinify API returned %d %s", status, http.StatusText(status))
	if body.Error != "" || body.Message != "" {
		err = fmt.Errorf("tinify API returned %d: %s: %s", status, body.Error, body.Message)
	}
	// Bad credentials will fail every request
	if status == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
