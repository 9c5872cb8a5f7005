package sheets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iglesia-ietq/asistencia-api/internal/ports/out/rostersource"
)

const maxDocumentBytes = 16 << 20

// Source fetches the published roster CSV from a Google Sheets export URL.
type Source struct {
	url    string
	client *http.Client
}

// NewSource builds a Source for the given CSV export URL. timeout bounds the
// whole fetch, headers and body included.
func NewSource(url string, timeout time.Duration) *Source {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Source{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *Source) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", fmt.Errorf("build roster request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", rostersource.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: unexpected status %d", rostersource.ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", rostersource.ErrUnavailable, err)
	}
	return string(body), nil
}
