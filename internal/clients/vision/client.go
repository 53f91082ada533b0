package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/utils"
)

// Result is the image classifier provider's output for one leaf image.
type Result struct {
	Label        string
	Confidence   float64
	ProcessingMs int64
}

// Classifier is the external CNN inference provider. Its internals are out
// of scope; this is the full contract the core consumes.
type Classifier interface {
	Classify(ctx context.Context, imageBytes []byte) (*Result, error)
}

type client struct {
	baseURL      string
	apiKey       string
	classifyPath string
	timeout      time.Duration
	httpClient   *http.Client
	log          *logger.Logger
}

func NewClient(baseLog *logger.Logger) (Classifier, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(utils.GetEnv("VISION_BASE_URL", "", baseLog)), "/")
	if baseURL == "" {
		return nil, errors.New("vision: VISION_BASE_URL required")
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &client{
		baseURL:      baseURL,
		apiKey:       strings.TrimSpace(utils.GetEnv("VISION_API_KEY", "", baseLog)),
		classifyPath: utils.GetEnv("VISION_CLASSIFY_PATH", "/v1/classify", baseLog),
		timeout:      utils.GetEnvAsDuration("VISION_TIMEOUT", 30*time.Second, baseLog),
		httpClient:   &http.Client{Transport: tr},
		log:          baseLog.With("service", "VisionClient"),
	}, nil
}

// NewClientWithHTTPClient is intended for tests; it avoids network access by
// using a custom RoundTripper.
func NewClientWithHTTPClient(baseLog *logger.Logger, httpClient *http.Client) (Classifier, error) {
	c, err := NewClient(baseLog)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		c.(*client).httpClient = httpClient
	}
	return c, nil
}

type classifyRequest struct {
	ImageB64 string `json:"image_b64"`
}

type classifyResponse struct {
	Label        string  `json:"label"`
	Confidence   float64 `json:"confidence"`
	ProcessingMs int64   `json:"processing_ms"`
}

func (c *client) Classify(ctx context.Context, imageBytes []byte) (*Result, error) {
	if len(imageBytes) == 0 {
		return nil, errors.New("vision: empty image")
	}

	body, err := json.Marshal(classifyRequest{ImageB64: base64.StdEncoding.EncodeToString(imageBytes)})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.classifyPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision: classify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("vision: decode classify response: %w", err)
	}
	if out.Label == "" {
		return nil, errors.New("vision: classify response missing label")
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, fmt.Errorf("vision: confidence %v out of range [0,1]", out.Confidence)
	}

	return &Result{
		Label:        out.Label,
		Confidence:   out.Confidence,
		ProcessingMs: out.ProcessingMs,
	}, nil
}
