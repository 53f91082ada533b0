package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/grovelabs/leafsense-backend/internal/logger"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func testClient(t *testing.T, rt roundTripperFunc) Classifier {
	t.Helper()
	t.Setenv("VISION_BASE_URL", "http://upstream")
	t.Setenv("VISION_API_KEY", "test-key")
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	c, err := NewClientWithHTTPClient(log, &http.Client{Transport: rt})
	if err != nil {
		t.Fatalf("init client: %v", err)
	}
	return c
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestClassify(t *testing.T) {
	image := []byte("jpegbytes")
	c := testClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/classify" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		if auth := req.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Fatalf("authorization=%q", auth)
		}

		var in classifyRequest
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			t.Fatalf("decode req: %v", err)
		}
		decoded, err := base64.StdEncoding.DecodeString(in.ImageB64)
		if err != nil {
			t.Fatalf("decode image: %v", err)
		}
		if !bytes.Equal(decoded, image) {
			t.Fatalf("image bytes did not round-trip")
		}

		return jsonResponse(http.StatusOK, `{"label":"rust","confidence":0.91,"processing_ms":42}`), nil
	})

	res, err := c.Classify(context.Background(), image)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Label != "rust" || res.Confidence != 0.91 || res.ProcessingMs != 42 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClassifyNon200IsHTTPError(t *testing.T) {
	c := testClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, `upstream exploded`), nil
	})

	_, err := c.Classify(context.Background(), []byte("img"))
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("err=%v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("status=%d, want 502", httpErr.StatusCode)
	}
	if !strings.Contains(httpErr.Body, "upstream exploded") {
		t.Fatalf("body=%q", httpErr.Body)
	}
}

func TestClassifyValidatesResponse(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "missing_label", body: `{"confidence":0.5}`},
		{name: "confidence_above_one", body: `{"label":"rust","confidence":1.5}`},
		{name: "confidence_below_zero", body: `{"label":"rust","confidence":-0.1}`},
		{name: "not_json", body: `{{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := testClient(t, func(req *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, tc.body), nil
			})
			if _, err := c.Classify(context.Background(), []byte("img")); err == nil {
				t.Fatalf("Classify accepted malformed response")
			}
		})
	}
}

func TestClassifyRejectsEmptyImage(t *testing.T) {
	c := testClient(t, func(req *http.Request) (*http.Response, error) {
		t.Fatalf("request sent for empty image")
		return nil, nil
	})
	if _, err := c.Classify(context.Background(), nil); err == nil {
		t.Fatalf("Classify accepted empty image")
	}
}
