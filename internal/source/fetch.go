// Package source retrieves the IP ranges published by GitHub's meta API and
// splits them by address family.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultURL is GitHub's meta endpoint.
	// See: https://docs.github.com/en/authentication/keeping-your-account-and-data-secure/about-githubs-ip-addresses
	DefaultURL = "https://api.github.com/meta"

	// DefaultKey selects the webhook source ranges from the meta document.
	DefaultKey = "hooks"

	DefaultTimeout = 10 * time.Second

	userAgent = "github-hooks-cidr-aws-prefix-list"

	// maxBodyBytes caps the meta document; it is well under 1 MB in practice.
	maxBodyBytes = 8 << 20
)

// FetchError describes a failed retrieval of the meta document.
// StatusCode is zero when no HTTP response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: HTTP status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher retrieves one array of CIDRs from the meta document.
type Fetcher struct {
	URL    string
	Key    string
	Client *http.Client
}

// NewFetcher returns a Fetcher for the webhook ranges of github.com.
func NewFetcher() *Fetcher {
	return &Fetcher{
		URL:    DefaultURL,
		Key:    DefaultKey,
		Client: &http.Client{Timeout: DefaultTimeout},
	}
}

// Fetch issues a single GET and returns the CIDR strings listed under Key.
// Any failure is returned as a *FetchError; Fetch never substitutes empty data.
func (f *Fetcher) Fetch(ctx context.Context) ([]string, error) {
	url := f.URL
	if url == "" {
		url = DefaultURL
	}
	key := f.Key
	if key == "" {
		key = DefaultKey
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("HTTP status %d", resp.StatusCode)}
	}

	var meta map[string]json.RawMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&meta); err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("decoding meta document: %w", err)}
	}
	raw, ok := meta[key]
	if !ok {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("meta document has no %q field", key)}
	}
	var cidrs []string
	if err := json.Unmarshal(raw, &cidrs); err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("decoding %q field: %w", key, err)}
	}
	return cidrs, nil
}
