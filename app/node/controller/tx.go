package controller

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/research-protocol/researchx/pkg/research"
	"github.com/research-protocol/researchx/pkg/txn"
	"go.uber.org/zap"
)

const maxTxBody = 64 << 10

// TxRequest carries one signed envelope.
type TxRequest struct {
	Envelope string `json:"envelope"`
}

// TxResponse reports the address the instruction allocated or mutated.
type TxResponse struct {
	TxID        string          `json:"tx_id"`
	Instruction string          `json:"instruction"`
	Signer      research.Pubkey `json:"signer"`
	Address     research.Pubkey `json:"address"`
}

// HandleTx verifies a signed envelope and applies its instruction to the program.
// Envelope ids are consumed whether or not the instruction succeeds.
func (c *Controller) HandleTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTxBody))
	if err != nil {
		c.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	var req TxRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Envelope == "" {
		c.writeError(w, fmt.Errorf("%w: body must be {\"envelope\": \"<jws>\"}", errBadRequest))
		return
	}

	signed, err := txn.Verify(req.Envelope, c.App.MaxTTL)
	if err != nil {
		c.writeError(w, err)
		return
	}
	if !txn.KnownInstruction(signed.Instruction) {
		c.writeError(w, fmt.Errorf("%w: %q", txn.ErrUnknownInstruction, signed.Instruction))
		return
	}
	if err := c.App.Replay.Check(signed); err != nil {
		c.writeError(w, err)
		return
	}

	ctx := research.WithTxID(r.Context(), signed.ID)
	addr, err := c.dispatch(ctx, signed)
	if err != nil {
		c.App.Logger.Debug("Transaction rejected",
			zap.String("tx_id", signed.ID),
			zap.String("instruction", signed.Instruction),
			zap.Error(err))
		c.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TxResponse{
		TxID:        signed.ID,
		Instruction: signed.Instruction,
		Signer:      signed.Signer,
		Address:     addr,
	})
}

func (c *Controller) dispatch(ctx context.Context, s *txn.Signed) (research.Pubkey, error) {
	p := c.App.Program

	switch s.Instruction {
	case txn.InstructionCreateRequest:
		var args txn.CreateRequestArgs
		if err := s.DecodeArgs(&args); err != nil {
			return research.Pubkey{}, err
		}
		return p.CreateRequest(ctx, s.Signer, research.CreateRequestInput{
			Topic:      args.Topic,
			MaxSources: args.MaxSources,
			Deadline:   args.Deadline,
		})

	case txn.InstructionCommitMethodology:
		var args txn.CommitMethodologyArgs
		if err := s.DecodeArgs(&args); err != nil {
			return research.Pubkey{}, err
		}
		return args.Request, p.CommitMethodology(ctx, s.Signer, args.Request, args.MethodologyHash)

	case txn.InstructionSubmitReport:
		var args txn.SubmitReportArgs
		if err := s.DecodeArgs(&args); err != nil {
			return research.Pubkey{}, err
		}
		return p.SubmitReport(ctx, s.Signer, args.Request, research.SubmitReportInput{
			ReportHash:   args.ReportHash,
			SourceHashes: args.SourceHashes,
			ArweaveTx:    args.ArweaveTx,
		})

	case txn.InstructionVerifyReport:
		var args txn.VerifyReportArgs
		if err := s.DecodeArgs(&args); err != nil {
			return research.Pubkey{}, err
		}
		return p.VerifyReport(ctx, s.Signer, args.Report, args.IsValid, args.NotesHash)
	}

	return research.Pubkey{}, fmt.Errorf("%w: %q", txn.ErrUnknownInstruction, s.Instruction)
}
