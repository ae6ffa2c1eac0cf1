package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/research-protocol/researchx/pkg/utils"
)

// MaxSourceBytes caps how much of a fetched page is hashed.
const MaxSourceBytes = 50_000

const userAgent = "ResearchX/1.0 (Verifiable Research Agent)"

var titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// Fetcher retrieves sources and pins their content with a hash.
type Fetcher struct {
	Client *http.Client
	Now    func() time.Time
}

func NewFetcher() *Fetcher {
	return &Fetcher{Client: &http.Client{Timeout: 10 * time.Second}, Now: time.Now}
}

// Fetch downloads url and returns a Source carrying the SHA-256 of the first MaxSourceBytes.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Source, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Source{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return Source{}, fmt.Errorf("fetch source %s: %w", url, err)
	}
	defer utils.DrainAndClose(resp.Body)

	if resp.StatusCode >= 400 {
		return Source{}, fmt.Errorf("fetch source %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxSourceBytes))
	if err != nil {
		return Source{}, fmt.Errorf("read source %s: %w", url, err)
	}

	title := url
	if m := titlePattern.FindSubmatch(body); m != nil {
		if t := strings.TrimSpace(string(m[1])); t != "" {
			title = t
		}
	}
	sum := sha256.Sum256(body)
	return Source{
		URL:         url,
		Title:       title,
		FetchedAt:   f.Now().UTC(),
		ContentHash: hex.EncodeToString(sum[:]),
	}, nil
}
