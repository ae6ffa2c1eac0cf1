// Package research implements the research-commissioning state machine: a requester posts a
// topic, one researcher commits to a methodology and submits a hashed report, and any number
// of verifiers attest to it. Records live at deterministic addresses on a ledger Store.
package research

import (
	"encoding/hex"
	"fmt"
)

const (
	// MaxTopicLen is the byte capacity of ResearchRequest.Topic.
	MaxTopicLen = 256
	// MaxSources is the slot capacity of ResearchReport.SourceHashes.
	MaxSources = 32
	// MaxArweaveTxLen is the byte capacity of ResearchReport.ArweaveTx.
	MaxArweaveTxLen = 64
)

// Pubkey is a 32-byte identity or derived record address.
type Pubkey [32]byte

// Hash is a 32-byte content digest.
type Hash [32]byte

func (k Pubkey) String() string { return hex.EncodeToString(k[:]) }

func (k Pubkey) IsZero() bool { return k == Pubkey{} }

func (k Pubkey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Pubkey) UnmarshalText(text []byte) error {
	return decodeHex32((*[32]byte)(k), string(text))
}

// ParsePubkey decodes a 64-character hex string.
func ParsePubkey(s string) (Pubkey, error) {
	var k Pubkey
	err := decodeHex32((*[32]byte)(&k), s)
	return k, err
}

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(text []byte) error {
	return decodeHex32((*[32]byte)(h), string(text))
}

// ParseHash decodes a 64-character hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	err := decodeHex32((*[32]byte)(&h), s)
	return h, err
}

func decodeHex32(dst *[32]byte, s string) error {
	if len(s) != hex.EncodedLen(len(dst)) {
		return fmt.Errorf("expected %d hex characters, got %d", hex.EncodedLen(len(dst)), len(s))
	}
	if _, err := hex.Decode(dst[:], []byte(s)); err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	return nil
}

// RequestStatus is the lifecycle state of a ResearchRequest.
type RequestStatus uint8

const (
	StatusOpen RequestStatus = iota
	StatusInProgress
	StatusCompleted
	// StatusCancelled is reserved; no operation moves a request into it.
	StatusCancelled
)

var statusNames = [...]string{"open", "in_progress", "completed", "cancelled"}

func (s RequestStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

func (s RequestStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *RequestStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus maps a status name back to its value.
func ParseStatus(name string) (RequestStatus, error) {
	for i, n := range statusNames {
		if n == name {
			return RequestStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown request status %q", name)
}

// ResearchRequest is created once per (requester, topic).
type ResearchRequest struct {
	Requester              Pubkey        `json:"requester"`
	Topic                  string        `json:"topic"`
	MaxSources             uint8         `json:"max_sources"`
	Deadline               int64         `json:"deadline"`
	Status                 RequestStatus `json:"status"`
	CreatedAt              int64         `json:"created_at"`
	Researcher             *Pubkey       `json:"researcher,omitempty"`
	MethodologyHash        *Hash         `json:"methodology_hash,omitempty"`
	MethodologyCommittedAt *int64        `json:"methodology_committed_at,omitempty"`
	CompletedAt            *int64        `json:"completed_at,omitempty"`
}

// ResearchReport is created once per request, at the address derived from the request.
type ResearchReport struct {
	Request           Pubkey           `json:"request"`
	Researcher        Pubkey           `json:"researcher"`
	ReportHash        Hash             `json:"report_hash"`
	SourceHashes      [MaxSources]Hash `json:"-"`
	SourceCount       uint8            `json:"source_count"`
	ArweaveTx         string           `json:"arweave_tx"`
	SubmittedAt       int64            `json:"submitted_at"`
	Verified          bool             `json:"verified"`
	VerificationCount uint16           `json:"verification_count"`
}

// Sources returns the populated prefix of SourceHashes.
func (r *ResearchReport) Sources() []Hash {
	n := int(r.SourceCount)
	if n > MaxSources {
		n = MaxSources
	}
	out := make([]Hash, n)
	copy(out, r.SourceHashes[:n])
	return out
}

// Verification is one verifier's attestation on one report.
type Verification struct {
	Report     Pubkey `json:"report"`
	Verifier   Pubkey `json:"verifier"`
	IsValid    bool   `json:"is_valid"`
	NotesHash  *Hash  `json:"notes_hash,omitempty"`
	VerifiedAt int64  `json:"verified_at"`
}
