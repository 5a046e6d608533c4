package submit

import (
	"fmt"
	"regexp"
	"strings"
)

// Result is the verify-mint endpoint's reply. The body is opaque; Message and
// ExplorerURL are only display conveniences.
type Result struct {
	Raw         string `json:"raw"`
	Message     string `json:"message"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}

// TransportError reports a submission that did not get a 2xx reply.
// StatusCode is zero when no response arrived.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("submission transport failed: %v", e.Err)
	}
	return fmt.Sprintf("submission rejected with status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

var (
	tagPattern = regexp.MustCompile(`<[^>]*>`)
	urlPattern = regexp.MustCompile(`https?://[^<\s"']+`)
)

func parseResult(body string) Result {
	return Result{
		Raw:         body,
		Message:     strings.TrimSpace(tagPattern.ReplaceAllString(body, "")),
		ExplorerURL: urlPattern.FindString(body),
	}
}
