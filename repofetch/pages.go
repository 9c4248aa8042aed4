package repofetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxPageSize = 4 << 20 // 4 MiB

// PageProbe is the outcome of fetching a deployed page.
type PageProbe struct {
	StatusCode int
	Body       []byte
	Elapsed    time.Duration
}

// ProbePages fetches the deployed Pages site of a submission. A
// network-level failure is reported as ErrUnreachable; a non-2xx
// response is a valid probe result, not an error.
func ProbePages(ctx context.Context, client *http.Client, pagesURL string) (PageProbe, error) {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pagesURL, nil)
	if err != nil {
		return PageProbe{}, fmt.Errorf("%w: invalid pages URL: %v", ErrUnreachable, err)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return PageProbe{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return PageProbe{}, fmt.Errorf("%w: reading page body: %v", ErrUnreachable, err)
	}

	return PageProbe{
		StatusCode: resp.StatusCode,
		Body:       body,
		Elapsed:    time.Since(start),
	}, nil
}
