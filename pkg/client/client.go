// Package client is the Go SDK for a research node. It derives addresses locally,
// signs transaction envelopes and maps API failures back to research errors.
package client

import (
	"context"
	"net/http"
	"time"

	"github.com/research-protocol/researchx/pkg/research"
	"github.com/research-protocol/researchx/pkg/txn"
)

type Client struct {
	http      *HTTPClient
	programID research.Pubkey
	ttl       time.Duration
}

type Option func(*Client)

// WithProgramID sets the program id used for local address derivation.
func WithProgramID(id research.Pubkey) Option {
	return func(c *Client) { c.programID = id }
}

// WithTTL sets the lifetime of signed envelopes.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) { c.ttl = ttl }
}

func New(hc *HTTPClient, opts ...Option) *Client {
	c := &Client{http: hc, programID: research.DefaultProgramID, ttl: time.Minute}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewFromURL builds a client for a single node endpoint.
func NewFromURL(url string, opts ...Option) *Client {
	return New(NewHTTPWithOpts(Opts{Endpoints: []string{url}}), opts...)
}

func (c *Client) ProgramID() research.Pubkey { return c.programID }

// ProgramInfo mirrors GET /api/program.
type ProgramInfo struct {
	ProgramID       research.Pubkey `json:"program_id"`
	Backend         string          `json:"backend"`
	MaxTopicLen     int             `json:"max_topic_len"`
	MaxSources      int             `json:"max_sources"`
	MaxArweaveTxLen int             `json:"max_arweave_tx_len"`
	TxMaxTTLSeconds int64           `json:"tx_max_ttl_seconds"`
	Instructions    []string        `json:"instructions"`
}

// Sync fetches the node's program description and adopts its program id.
func (c *Client) Sync(ctx context.Context) (*ProgramInfo, error) {
	var info ProgramInfo
	if err := c.http.doJSON(ctx, http.MethodGet, programPath, nil, &info); err != nil {
		return nil, err
	}
	c.programID = info.ProgramID
	if maxTTL := time.Duration(info.TxMaxTTLSeconds) * time.Second; maxTTL > 0 && c.ttl > maxTTL {
		c.ttl = maxTTL
	}
	return &info, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.http.doJSON(ctx, http.MethodGet, healthPath, nil, nil)
}

// Result is the outcome of an applied instruction.
type Result struct {
	TxID        string          `json:"tx_id"`
	Instruction string          `json:"instruction"`
	Signer      research.Pubkey `json:"signer"`
	Address     research.Pubkey `json:"address"`
}

// Submit signs args for instruction and sends the envelope to the node.
func (c *Client) Submit(ctx context.Context, kp *txn.Keypair, instruction string, args any) (*Result, error) {
	token, err := txn.Sign(kp, instruction, args, c.ttl)
	if err != nil {
		return nil, err
	}
	var res Result
	if err := c.http.doJSON(ctx, http.MethodPost, txPath, map[string]string{"envelope": token}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) CreateRequest(ctx context.Context, kp *txn.Keypair, topic string, maxSources uint8, deadline time.Time) (research.Pubkey, error) {
	res, err := c.Submit(ctx, kp, txn.InstructionCreateRequest, txn.CreateRequestArgs{
		Topic:      topic,
		MaxSources: maxSources,
		Deadline:   deadline.Unix(),
	})
	if err != nil {
		return research.Pubkey{}, err
	}
	return res.Address, nil
}

func (c *Client) CommitMethodology(ctx context.Context, kp *txn.Keypair, request research.Pubkey, methodologyHash research.Hash) error {
	_, err := c.Submit(ctx, kp, txn.InstructionCommitMethodology, txn.CommitMethodologyArgs{
		Request:         request,
		MethodologyHash: methodologyHash,
	})
	return err
}

func (c *Client) SubmitReport(ctx context.Context, kp *txn.Keypair, request research.Pubkey, reportHash research.Hash, sourceHashes []research.Hash, arweaveTx string) (research.Pubkey, error) {
	res, err := c.Submit(ctx, kp, txn.InstructionSubmitReport, txn.SubmitReportArgs{
		Request:      request,
		ReportHash:   reportHash,
		SourceHashes: sourceHashes,
		ArweaveTx:    arweaveTx,
	})
	if err != nil {
		return research.Pubkey{}, err
	}
	return res.Address, nil
}

func (c *Client) VerifyReport(ctx context.Context, kp *txn.Keypair, report research.Pubkey, isValid bool, notesHash *research.Hash) (research.Pubkey, error) {
	res, err := c.Submit(ctx, kp, txn.InstructionVerifyReport, txn.VerifyReportArgs{
		Report:    report,
		IsValid:   isValid,
		NotesHash: notesHash,
	})
	if err != nil {
		return research.Pubkey{}, err
	}
	return res.Address, nil
}

type record[T any] struct {
	Address research.Pubkey `json:"address"`
	Record  T               `json:"record"`
}

func (c *Client) Request(ctx context.Context, addr research.Pubkey) (*research.ResearchRequest, error) {
	var out record[research.ResearchRequest]
	if err := c.http.doJSON(ctx, http.MethodGet, requestsPath+addr.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out.Record, nil
}

type reportView struct {
	research.ResearchReport
	SourceHashes []research.Hash `json:"source_hashes"`
}

func (c *Client) Report(ctx context.Context, addr research.Pubkey) (*research.ResearchReport, error) {
	var out record[reportView]
	if err := c.http.doJSON(ctx, http.MethodGet, reportsPath+addr.String(), nil, &out); err != nil {
		return nil, err
	}
	rep := out.Record.ResearchReport
	copy(rep.SourceHashes[:], out.Record.SourceHashes)
	return &rep, nil
}

func (c *Client) Verification(ctx context.Context, addr research.Pubkey) (*research.Verification, error) {
	var out record[research.Verification]
	if err := c.http.doJSON(ctx, http.MethodGet, verificationsPath+addr.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out.Record, nil
}

// RequestAddress derives a request address without a round trip.
func (c *Client) RequestAddress(requester research.Pubkey, topic string) (research.Pubkey, error) {
	addr, _, err := research.RequestAddress(c.programID, requester, topic)
	return addr, err
}

func (c *Client) ReportAddress(request research.Pubkey) (research.Pubkey, error) {
	addr, _, err := research.ReportAddress(c.programID, request)
	return addr, err
}

func (c *Client) VerificationAddress(report, verifier research.Pubkey) (research.Pubkey, error) {
	addr, _, err := research.VerificationAddress(c.programID, report, verifier)
	return addr, err
}
