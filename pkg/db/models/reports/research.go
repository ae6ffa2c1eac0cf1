package reports

import (
	"time"
)

const (
	DailyTableName               = "research_daily"
	VerificationSummaryTableName = "report_verification_summary"
)

type ResearchDaily struct {
	Day                    time.Time `ch:"day" json:"day"` // Note: Date (not DateTime)
	RequestsCreated        uint64    `ch:"requests_created" json:"requests_created"`
	MethodologiesCommitted uint64    `ch:"methodologies_committed" json:"methodologies_committed"`
	ReportsSubmitted       uint64    `ch:"reports_submitted" json:"reports_submitted"`
	Verifications          uint64    `ch:"verifications" json:"verifications"`
	ValidVerifications     uint64    `ch:"valid_verifications" json:"valid_verifications"`
	Version                uint64    `ch:"version" json:"-"`
}

type VerificationSummary struct {
	Report          string    `ch:"report" json:"report"`
	Verifications   uint64    `ch:"verifications" json:"verifications"`
	Valid           uint64    `ch:"valid" json:"valid"`
	Invalid         uint64    `ch:"invalid" json:"invalid"`
	FirstVerifiedAt time.Time `ch:"first_verified_at" json:"first_verified_at"`
	LastVerifiedAt  time.Time `ch:"last_verified_at" json:"last_verified_at"`
	Version         uint64    `ch:"version" json:"-"`
}
