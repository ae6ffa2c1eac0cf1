package research

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Program executes the four research transitions against a Store.
type Program struct {
	id      Pubkey
	store   Store
	clock   Clock
	emitter Emitter
	logger  *zap.Logger
}

// NewProgram wires a program. Nil clock, emitter and logger fall back to SystemClock,
// NopEmitter and a no-op logger.
func NewProgram(id Pubkey, store Store, clock Clock, emitter Emitter, logger *zap.Logger) *Program {
	if clock == nil {
		clock = SystemClock{}
	}
	if emitter == nil {
		emitter = NopEmitter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Program{id: id, store: store, clock: clock, emitter: emitter, logger: logger}
}

func (p *Program) ID() Pubkey { return p.id }

type CreateRequestInput struct {
	Topic      string
	MaxSources uint8
	Deadline   int64
}

type SubmitReportInput struct {
	ReportHash   Hash
	SourceHashes []Hash
	ArweaveTx    string
}

// CreateRequest opens a request owned by requester and returns its address.
func (p *Program) CreateRequest(ctx context.Context, requester Pubkey, in CreateRequestInput) (Pubkey, error) {
	addr, _, err := RequestAddress(p.id, requester, in.Topic)
	if err != nil {
		return Pubkey{}, err
	}

	err = p.execute(ctx, "create_request", func(tx Tx, now int64) ([]Event, error) {
		if len(in.Topic) > MaxTopicLen {
			return nil, ErrTopicTooLong
		}
		if in.Deadline <= now {
			return nil, ErrDeadlineInPast
		}

		req := &ResearchRequest{
			Requester:  requester,
			Topic:      in.Topic,
			MaxSources: in.MaxSources,
			Deadline:   in.Deadline,
			Status:     StatusOpen,
			CreatedAt:  now,
		}
		if err := tx.Create(ctx, Account{Address: addr, Kind: KindRequest, Data: EncodeRequest(req)}); err != nil {
			return nil, err
		}
		return []Event{RequestCreated{Request: addr, Requester: requester, Topic: in.Topic}}, nil
	})
	if err != nil {
		return Pubkey{}, err
	}
	return addr, nil
}

// CommitMethodology assigns researcher to an open request and moves it to InProgress.
func (p *Program) CommitMethodology(ctx context.Context, researcher, request Pubkey, methodologyHash Hash) error {
	return p.execute(ctx, "commit_methodology", func(tx Tx, now int64) ([]Event, error) {
		req, err := loadRequest(ctx, tx, request)
		if err != nil {
			return nil, err
		}
		if req.Status != StatusOpen {
			return nil, ErrInvalidStatus
		}
		if now >= req.Deadline {
			return nil, ErrDeadlinePassed
		}

		r, h, at := researcher, methodologyHash, now
		req.Researcher = &r
		req.MethodologyHash = &h
		req.MethodologyCommittedAt = &at
		req.Status = StatusInProgress
		if err := tx.Update(ctx, Account{Address: request, Kind: KindRequest, Data: EncodeRequest(req)}); err != nil {
			return nil, err
		}
		return []Event{MethodologyCommitted{Request: request, Researcher: researcher, MethodologyHash: methodologyHash}}, nil
	})
}

// SubmitReport records the assigned researcher's report and completes the request. It returns
// the report address.
func (p *Program) SubmitReport(ctx context.Context, researcher, request Pubkey, in SubmitReportInput) (Pubkey, error) {
	addr, _, err := ReportAddress(p.id, request)
	if err != nil {
		return Pubkey{}, err
	}

	err = p.execute(ctx, "submit_report", func(tx Tx, now int64) ([]Event, error) {
		req, err := loadRequest(ctx, tx, request)
		if err != nil {
			return nil, err
		}
		if req.Status != StatusInProgress {
			return nil, ErrInvalidStatus
		}
		if req.Researcher == nil || *req.Researcher != researcher {
			return nil, ErrNotAssignedResearcher
		}
		if len(in.SourceHashes) > MaxSources {
			return nil, ErrTooManySources
		}
		if len(in.ArweaveTx) > MaxArweaveTxLen {
			return nil, ErrInvalidArweaveTx
		}

		report := &ResearchReport{
			Request:     request,
			Researcher:  researcher,
			ReportHash:  in.ReportHash,
			SourceCount: uint8(len(in.SourceHashes)),
			ArweaveTx:   in.ArweaveTx,
			SubmittedAt: now,
		}
		copy(report.SourceHashes[:], in.SourceHashes)
		if err := tx.Create(ctx, Account{Address: addr, Kind: KindReport, Data: EncodeReport(report)}); err != nil {
			return nil, err
		}

		completed := now
		req.Status = StatusCompleted
		req.CompletedAt = &completed
		if err := tx.Update(ctx, Account{Address: request, Kind: KindRequest, Data: EncodeRequest(req)}); err != nil {
			return nil, err
		}
		return []Event{ReportSubmitted{
			Request:     request,
			Report:      addr,
			Researcher:  researcher,
			ReportHash:  in.ReportHash,
			SourceCount: report.SourceCount,
		}}, nil
	})
	if err != nil {
		return Pubkey{}, err
	}
	return addr, nil
}

// VerifyReport records verifier's attestation on report and returns the verification address.
// Any caller may verify, once per report.
func (p *Program) VerifyReport(ctx context.Context, verifier, report Pubkey, isValid bool, notesHash *Hash) (Pubkey, error) {
	addr, _, err := VerificationAddress(p.id, report, verifier)
	if err != nil {
		return Pubkey{}, err
	}

	err = p.execute(ctx, "verify_report", func(tx Tx, now int64) ([]Event, error) {
		rep, err := loadReport(ctx, tx, report)
		if err != nil {
			return nil, err
		}

		v := &Verification{
			Report:     report,
			Verifier:   verifier,
			IsValid:    isValid,
			VerifiedAt: now,
		}
		if notesHash != nil {
			h := *notesHash
			v.NotesHash = &h
		}
		if err := tx.Create(ctx, Account{Address: addr, Kind: KindVerification, Data: EncodeVerification(v)}); err != nil {
			return nil, err
		}

		if rep.VerificationCount == math.MaxUint16 {
			return nil, ErrArithmeticOverflow
		}
		rep.VerificationCount++
		if isValid {
			rep.Verified = true
		}
		if err := tx.Update(ctx, Account{Address: report, Kind: KindReport, Data: EncodeReport(rep)}); err != nil {
			return nil, err
		}
		return []Event{ReportVerified{Report: report, Verifier: verifier, IsValid: isValid}}, nil
	})
	if err != nil {
		return Pubkey{}, err
	}
	return addr, nil
}

// Request reads a committed request.
func (p *Program) Request(ctx context.Context, addr Pubkey) (*ResearchRequest, error) {
	acct, err := p.store.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return DecodeRequest(acct.Data)
}

// Report reads a committed report.
func (p *Program) Report(ctx context.Context, addr Pubkey) (*ResearchReport, error) {
	acct, err := p.store.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return DecodeReport(acct.Data)
}

// Verification reads a committed verification.
func (p *Program) Verification(ctx context.Context, addr Pubkey) (*Verification, error) {
	acct, err := p.store.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return DecodeVerification(acct.Data)
}

type transition func(tx Tx, now int64) ([]Event, error)

// execute runs fn in one store transaction and emits its events once the transaction has
// committed. fn may be invoked more than once by stores that retry on conflicts.
func (p *Program) execute(ctx context.Context, op string, fn transition) error {
	var (
		now    int64
		events []Event
	)
	err := p.store.Atomic(ctx, func(tx Tx) error {
		now = p.clock.Now()
		evs, err := fn(tx, now)
		if err != nil {
			return err
		}
		events = evs
		return nil
	})
	if err != nil {
		var perr *Error
		if errors.As(err, &perr) {
			p.logger.Debug("Transaction rejected", zap.String("op", op), zap.String("error", perr.Name))
		} else {
			p.logger.Debug("Transaction failed", zap.String("op", op), zap.Error(err))
		}
		return err
	}

	txID := TxIDFrom(ctx)
	if txID == "" {
		txID = uuid.NewString()
	}
	// Emission runs after the store releases the transaction, so events of concurrent
	// transactions may reach observers out of ledger order.
	for _, ev := range events {
		env := Envelope{Event: ev.EventName(), TxID: txID, Timestamp: now, Payload: ev}
		if emitErr := p.emitter.Emit(ctx, env); emitErr != nil {
			p.logger.Warn("Failed to emit event", zap.String("event", env.Event), zap.String("tx_id", txID), zap.Error(emitErr))
		}
	}
	p.logger.Info("Transaction applied", zap.String("op", op), zap.String("tx_id", txID), zap.Int("events", len(events)))
	return nil
}

func loadRequest(ctx context.Context, tx Tx, addr Pubkey) (*ResearchRequest, error) {
	acct, err := tx.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	if acct.Kind != KindRequest {
		return nil, fmt.Errorf("request %s: %w", addr, ErrAccountDiscriminatorMismatch)
	}
	return DecodeRequest(acct.Data)
}

func loadReport(ctx context.Context, tx Tx, addr Pubkey) (*ResearchReport, error) {
	acct, err := tx.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	if acct.Kind != KindReport {
		return nil, fmt.Errorf("report %s: %w", addr, ErrAccountDiscriminatorMismatch)
	}
	return DecodeReport(acct.Data)
}
