package preview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Fetcher retrieves the original image bytes for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// maxFetchBytes caps how much of a resource is read when generating a
// preview. Anything larger is never eligible for inlining anyway.
const maxFetchBytes = 16 << 20

type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("http.NewRequestWithContext: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("http.Client.Do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, "", fmt.Errorf("io.ReadAll: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// MemoryFetcher serves images from an in-memory table.
type MemoryFetcher struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

type memEntry struct {
	data        []byte
	contentType string
}

func NewMemoryFetcher() *MemoryFetcher {
	return &MemoryFetcher{entries: make(map[string]memEntry)}
}

func (f *MemoryFetcher) Add(url, contentType string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[url] = memEntry{data: data, contentType: contentType}
}

func (f *MemoryFetcher) Fetch(_ context.Context, url string) ([]byte, string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.entries[url]
	if !ok {
		return nil, "", fmt.Errorf("no entry for %s", url)
	}
	return e.data, e.contentType, nil
}
