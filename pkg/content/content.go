// Package content hashes the off-ledger documents that requests, reports and verifications
// commit to. Every digest is SHA-256 over the RFC 8785 canonical JSON of the document, so the
// same document hashes identically regardless of field order or whitespace.
package content

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/research-protocol/researchx/pkg/research"
)

type Methodology struct {
	Approach          string   `json:"approach"`
	Sources           []string `json:"sources"`
	AnalysisFramework string   `json:"analysisFramework"`
	Limitations       []string `json:"limitations"`
}

type Source struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	FetchedAt   time.Time `json:"fetchedAt"`
	ContentHash string    `json:"contentHash"`
	Archived    string    `json:"archived,omitempty"`
}

type Report struct {
	Topic       string      `json:"topic"`
	Methodology Methodology `json:"methodology"`
	Sources     []Source    `json:"sources"`
	Findings    string      `json:"findings"`
	Conclusion  string      `json:"conclusion"`
	GeneratedAt time.Time   `json:"generatedAt"`
}

const isoMillis = "2006-01-02T15:04:05.000Z"

// HashContent digests raw text.
func HashContent(text string) research.Hash {
	return research.Hash(sha256.Sum256([]byte(text)))
}

// HashNotes digests verifier notes. Empty notes have no hash.
func HashNotes(notes string) *research.Hash {
	if notes == "" {
		return nil
	}
	h := HashContent(notes)
	return &h
}

func HashMethodology(m Methodology) (research.Hash, error) {
	return hashCanonical(m)
}

// HashSource covers only the fields that pin the fetched bytes: url, content hash and fetch time.
func HashSource(s Source) (research.Hash, error) {
	return hashCanonical(struct {
		URL         string `json:"url"`
		ContentHash string `json:"contentHash"`
		FetchedAt   string `json:"fetchedAt"`
	}{
		URL:         s.URL,
		ContentHash: s.ContentHash,
		FetchedAt:   s.FetchedAt.UTC().Format(isoMillis),
	})
}

func HashReport(r Report) (research.Hash, error) {
	return hashCanonical(r)
}

// SourceHashes hashes every source of r in order.
func SourceHashes(r Report) ([]research.Hash, error) {
	out := make([]research.Hash, 0, len(r.Sources))
	for i, s := range r.Sources {
		h, err := HashSource(s)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		out = append(out, h)
	}
	return out, nil
}

// Canonical returns the RFC 8785 encoding of v.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

func hashCanonical(v any) (research.Hash, error) {
	data, err := Canonical(v)
	if err != nil {
		return research.Hash{}, fmt.Errorf("canonicalize: %w", err)
	}
	return research.Hash(sha256.Sum256(data)), nil
}
