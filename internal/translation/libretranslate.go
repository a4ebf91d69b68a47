package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LibreTranslate calls a LibreTranslate-compatible endpoint, typically a
// local instance serving as the offline backend
type LibreTranslate struct {
	base   string
	apiKey string
	http   *http.Client
}

// NewLibreTranslate creates a client for the service at base
func NewLibreTranslate(base, apiKey string, timeout time.Duration) (*LibreTranslate, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return nil, fmt.Errorf("libretranslate endpoint cannot be empty")
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	return &LibreTranslate{
		base:   base,
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}, nil
}

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error,omitempty"`
}

// Translate sends one LibreTranslate /translate request
func (c *LibreTranslate) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	src := strings.TrimSpace(sourceLang)
	if src == "" {
		src = "auto"
	}

	body, err := json.Marshal(libreRequest{
		Q:      text,
		Source: src,
		Target: targetLang,
		Format: "text",
		APIKey: c.apiKey,
	})
	if err != nil {
		return "", &Error{Backend: "offline", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Backend: "offline", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Backend: "offline", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Backend: "offline", Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	var lr libreResponse
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if json.Unmarshal(respBody, &lr) == nil && lr.Error != "" {
			return "", &Error{Backend: "offline", Err: fmt.Errorf("HTTP error %d: %s", resp.StatusCode, lr.Error)}
		}
		return "", &Error{Backend: "offline", Err: fmt.Errorf("HTTP error %d", resp.StatusCode)}
	}

	if err := json.Unmarshal(respBody, &lr); err != nil {
		return "", &Error{Backend: "offline", Err: fmt.Errorf("failed to parse response JSON: %w", err)}
	}

	return strings.TrimSpace(lr.TranslatedText), nil
}
