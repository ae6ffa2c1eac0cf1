package txn

import (
	"bytes"
	"encoding/json"

	"github.com/research-protocol/researchx/pkg/research"
)

type CreateRequestArgs struct {
	Topic      string `json:"topic"`
	MaxSources uint8  `json:"max_sources"`
	Deadline   int64  `json:"deadline"`
}

type CommitMethodologyArgs struct {
	Request         research.Pubkey `json:"request"`
	MethodologyHash research.Hash   `json:"methodology_hash"`
}

type SubmitReportArgs struct {
	Request      research.Pubkey `json:"request"`
	ReportHash   research.Hash   `json:"report_hash"`
	SourceHashes []research.Hash `json:"source_hashes"`
	ArweaveTx    string          `json:"arweave_tx"`
}

type VerifyReportArgs struct {
	Report    research.Pubkey `json:"report"`
	IsValid   bool            `json:"is_valid"`
	NotesHash *research.Hash  `json:"notes_hash,omitempty"`
}

// KnownInstruction reports whether name is one of the program's instructions.
func KnownInstruction(name string) bool {
	switch name {
	case InstructionCreateRequest, InstructionCommitMethodology, InstructionSubmitReport, InstructionVerifyReport:
		return true
	}
	return false
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
