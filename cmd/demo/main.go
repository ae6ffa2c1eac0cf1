package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/research-protocol/researchx/pkg/client"
	"github.com/research-protocol/researchx/pkg/content"
	"github.com/research-protocol/researchx/pkg/logging"
	"github.com/research-protocol/researchx/pkg/txn"
	"github.com/research-protocol/researchx/pkg/utils"
)

// demo walks one request through its whole lifecycle against a running node:
// create, commit methodology, submit report, verify.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.New()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, logger); err != nil {
		logger.Fatal("Demo failed", zap.Error(err))
	}
}

func loadKeypair(logger *zap.Logger, role string) (*txn.Keypair, error) {
	env := "DEMO_SEED_" + role
	if seed := utils.Env(env, ""); seed != "" {
		return txn.KeypairFromSeedHex(seed)
	}
	kp, err := txn.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	logger.Info("Generated keypair", zap.String("role", role), zap.String("pubkey", kp.Pubkey().String()), zap.String("set", env))
	return kp, nil
}

func run(ctx context.Context, logger *zap.Logger) error {
	c := client.NewFromURL(utils.Env("NODE_URL", "http://localhost:3000"))
	info, err := c.Sync(ctx)
	if err != nil {
		return err
	}
	logger.Info("Connected", zap.String("program_id", info.ProgramID.String()), zap.String("backend", info.Backend))

	requester, err := loadKeypair(logger, "REQUESTER")
	if err != nil {
		return err
	}
	researcher, err := loadKeypair(logger, "RESEARCHER")
	if err != nil {
		return err
	}
	verifier, err := loadKeypair(logger, "VERIFIER")
	if err != nil {
		return err
	}

	topic := utils.Env("DEMO_TOPIC", "AI safety research landscape "+time.Now().UTC().Format(time.RFC3339))
	request, err := c.CreateRequest(ctx, requester, topic, 5, time.Now().Add(24*time.Hour))
	if err != nil {
		return err
	}
	logger.Info("Request created", zap.String("request", request.String()), zap.String("topic", topic))

	methodology := content.Methodology{
		Approach:          "Systematic literature review",
		Sources:           []string{"arxiv.org", "alignmentforum.org"},
		AnalysisFramework: "Thematic synthesis",
		Limitations:       []string{"English-language sources only"},
	}
	methodologyHash, err := content.HashMethodology(methodology)
	if err != nil {
		return err
	}
	if err := c.CommitMethodology(ctx, researcher, request, methodologyHash); err != nil {
		return err
	}
	logger.Info("Methodology committed", zap.String("hash", methodologyHash.String()))

	fetchedAt := time.Now().UTC()
	report := content.Report{
		Topic:       topic,
		Methodology: methodology,
		Sources: []content.Source{
			{URL: "https://arxiv.org/abs/1606.06565", Title: "Concrete Problems in AI Safety", FetchedAt: fetchedAt, ContentHash: content.HashContent("concrete problems").String()},
			{URL: "https://arxiv.org/abs/2209.00626", Title: "The Alignment Problem from a Deep Learning Perspective", FetchedAt: fetchedAt, ContentHash: content.HashContent("alignment problem").String()},
			{URL: "https://arxiv.org/abs/2310.19852", Title: "AI Alignment: A Comprehensive Survey", FetchedAt: fetchedAt, ContentHash: content.HashContent("alignment survey").String()},
		},
		Findings:    "Interpretability and scalable oversight dominate recent work.",
		Conclusion:  "The field is converging on empirical alignment methods.",
		GeneratedAt: fetchedAt,
	}
	reportHash, err := content.HashReport(report)
	if err != nil {
		return err
	}
	sourceHashes, err := content.SourceHashes(report)
	if err != nil {
		return err
	}
	reportAddr, err := c.SubmitReport(ctx, researcher, request, reportHash, sourceHashes, utils.Env("DEMO_ARWEAVE_TX", "demo-arweave-tx"))
	if err != nil {
		return err
	}
	logger.Info("Report submitted", zap.String("report", reportAddr.String()), zap.Int("sources", len(sourceHashes)))

	verification, err := c.VerifyReport(ctx, verifier, reportAddr, true, content.HashNotes("Sources check out."))
	if err != nil {
		return err
	}

	final, err := c.Report(ctx, reportAddr)
	if err != nil {
		return err
	}
	logger.Info("Report verified",
		zap.String("verification", verification.String()),
		zap.Bool("verified", final.Verified),
		zap.Uint16("verification_count", final.VerificationCount))
	return nil
}
