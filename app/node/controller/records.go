package controller

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/research-protocol/researchx/pkg/research"
	"github.com/research-protocol/researchx/pkg/txn"
)

// RecordResponse wraps a decoded ledger record with its address.
type RecordResponse[T any] struct {
	Address research.Pubkey `json:"address"`
	Record  T               `json:"record"`
}

// ReportView adds the populated source hashes, which the record keeps in fixed slots.
type ReportView struct {
	research.ResearchReport
	SourceHashes []research.Hash `json:"source_hashes"`
}

func addressVar(r *http.Request) (research.Pubkey, error) {
	addr, err := research.ParsePubkey(mux.Vars(r)["address"])
	if err != nil {
		return research.Pubkey{}, fmt.Errorf("%w: address: %v", errBadRequest, err)
	}
	return addr, nil
}

func (c *Controller) HandleRequest(w http.ResponseWriter, r *http.Request) {
	addr, err := addressVar(r)
	if err != nil {
		c.writeError(w, err)
		return
	}
	req, err := c.App.Program.Request(r.Context(), addr)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordResponse[*research.ResearchRequest]{Address: addr, Record: req})
}

func (c *Controller) HandleReport(w http.ResponseWriter, r *http.Request) {
	addr, err := addressVar(r)
	if err != nil {
		c.writeError(w, err)
		return
	}
	rep, err := c.App.Program.Report(r.Context(), addr)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordResponse[ReportView]{
		Address: addr,
		Record:  ReportView{ResearchReport: *rep, SourceHashes: rep.Sources()},
	})
}

func (c *Controller) HandleVerification(w http.ResponseWriter, r *http.Request) {
	addr, err := addressVar(r)
	if err != nil {
		c.writeError(w, err)
		return
	}
	v, err := c.App.Program.Verification(r.Context(), addr)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordResponse[*research.Verification]{Address: addr, Record: v})
}

// ProgramInfo describes the running program and its limits.
type ProgramInfo struct {
	ProgramID       research.Pubkey `json:"program_id"`
	Backend         string          `json:"backend"`
	MaxTopicLen     int             `json:"max_topic_len"`
	MaxSources      int             `json:"max_sources"`
	MaxArweaveTxLen int             `json:"max_arweave_tx_len"`
	TxMaxTTLSeconds int64           `json:"tx_max_ttl_seconds"`
	Instructions    []string        `json:"instructions"`
}

func (c *Controller) HandleProgram(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ProgramInfo{
		ProgramID:       c.App.Program.ID(),
		Backend:         c.App.Backend,
		MaxTopicLen:     research.MaxTopicLen,
		MaxSources:      research.MaxSources,
		MaxArweaveTxLen: research.MaxArweaveTxLen,
		TxMaxTTLSeconds: int64(c.App.MaxTTL.Seconds()),
		Instructions: []string{
			txn.InstructionCreateRequest,
			txn.InstructionCommitMethodology,
			txn.InstructionSubmitReport,
			txn.InstructionVerifyReport,
		},
	})
}
