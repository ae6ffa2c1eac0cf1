package research_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/research-protocol/researchx/pkg/db/memory"
	"github.com/research-protocol/researchx/pkg/research"
	"go.uber.org/zap"
)

func quietProgram(clock research.Clock) (*research.Program, *memory.Store) {
	store := memory.New()
	return research.NewProgram(research.DefaultProgramID, store, clock, nil, zap.NewNop()), store
}

func TestProperty_CreateRequest(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("successful creation is open with a future deadline", prop.ForAll(
		func(topic string, offset int64) bool {
			program, store := quietProgram(research.NewFixedClock(now))
			ctx := context.Background()
			addr, err := program.CreateRequest(ctx, identity("r"), research.CreateRequestInput{Topic: topic, Deadline: now + offset})

			switch {
			case len(topic) > research.MaxTopicLen:
				return errors.Is(err, research.ErrTopicTooLong) && store.Len() == 0
			case offset <= 0:
				return errors.Is(err, research.ErrDeadlineInPast) && store.Len() == 0
			}
			if err != nil {
				return false
			}
			req, err := program.Request(ctx, addr)
			return err == nil && req.Status == research.StatusOpen && req.Deadline > req.CreatedAt && req.Topic == topic
		},
		gen.AnyString(),
		gen.Int64Range(-1000, 1000),
	))

	properties.TestingRun(t)
}

func TestProperty_CommitMethodology(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("commit succeeds iff open and before deadline", prop.ForAll(
		func(elapsed int64, commitTwice bool) bool {
			clock := research.NewFixedClock(now)
			program, _ := quietProgram(clock)
			ctx := context.Background()
			addr, err := program.CreateRequest(ctx, identity("r"), research.CreateRequestInput{Topic: "t", Deadline: now + 100})
			if err != nil {
				return false
			}
			clock.Set(now + elapsed)

			err = program.CommitMethodology(ctx, identity("x"), addr, digest("m"))
			if elapsed >= 100 {
				if !errors.Is(err, research.ErrDeadlinePassed) {
					return false
				}
			} else if err != nil {
				return false
			}
			if commitTwice && elapsed < 100 {
				if !errors.Is(program.CommitMethodology(ctx, identity("y"), addr, digest("m2")), research.ErrInvalidStatus) {
					return false
				}
			}

			req, err := program.Request(ctx, addr)
			if err != nil {
				return false
			}
			bothSet := req.Researcher != nil && req.MethodologyHash != nil
			bothUnset := req.Researcher == nil && req.MethodologyHash == nil
			if elapsed < 100 {
				return bothSet && req.Status == research.StatusInProgress && *req.Researcher == identity("x")
			}
			return bothUnset && req.Status == research.StatusOpen
		},
		gen.Int64Range(0, 200),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestProperty_VerificationConsensus(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("count tracks successes and verified is sticky", prop.ForAll(
		func(verifiers []uint8, outcomes []bool) bool {
			program, _ := quietProgram(research.NewFixedClock(now))
			ctx := context.Background()
			researcher := identity("researcher")
			reqAddr, err := program.CreateRequest(ctx, identity("r"), research.CreateRequestInput{Topic: "t", Deadline: now + 10})
			if err != nil {
				return false
			}
			if err := program.CommitMethodology(ctx, researcher, reqAddr, digest("m")); err != nil {
				return false
			}
			repAddr, err := program.SubmitReport(ctx, researcher, reqAddr, research.SubmitReportInput{ReportHash: digest("r")})
			if err != nil {
				return false
			}

			seen := map[uint8]bool{}
			succeeded, anyValid := 0, false
			for i, v := range verifiers {
				isValid := i < len(outcomes) && outcomes[i]
				_, err := program.VerifyReport(ctx, identity(fmt.Sprintf("v%d", v)), repAddr, isValid, nil)
				if seen[v] {
					if !errors.Is(err, research.ErrAccountInUse) {
						return false
					}
				} else {
					if err != nil {
						return false
					}
					seen[v] = true
					succeeded++
					anyValid = anyValid || isValid
				}

				rep, err := program.Report(ctx, repAddr)
				if err != nil {
					return false
				}
				if int(rep.VerificationCount) != succeeded || rep.Verified != anyValid {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt8Range(0, 15)),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestProperty_AddressDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("identical seeds give identical addresses, distinct topics differ", prop.ForAll(
		func(owner string, a string, b string) bool {
			requester := identity(owner)
			x1, _, err1 := research.RequestAddress(research.DefaultProgramID, requester, a)
			x2, _, err2 := research.RequestAddress(research.DefaultProgramID, requester, a)
			y, _, err3 := research.RequestAddress(research.DefaultProgramID, requester, b)
			if err1 != nil || err2 != nil || err3 != nil {
				return false
			}
			if x1 != x2 {
				return false
			}
			return a == b || x1 != y
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
