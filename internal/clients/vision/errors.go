package vision

import "fmt"

// HTTPError distinguishes a provider failure from a low-confidence success.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "image classifier http error"
	}
	if e.Body == "" {
		return fmt.Sprintf("image classifier http error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("image classifier http error: status=%d body=%s", e.StatusCode, e.Body)
}
