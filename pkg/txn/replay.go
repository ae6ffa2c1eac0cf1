package txn

import (
	"errors"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

var ErrReplayed = errors.New("transaction envelope already submitted")

// ReplayGuard remembers envelope ids until they expire.
type ReplayGuard struct {
	seen *xsync.Map[string, time.Time]
	now  func() time.Time
}

func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{seen: xsync.NewMap[string, time.Time](), now: time.Now}
}

// Check records s and fails if its id was already recorded.
func (g *ReplayGuard) Check(s *Signed) error {
	if _, loaded := g.seen.LoadOrStore(s.ID, s.ExpiresAt); loaded {
		return ErrReplayed
	}
	return nil
}

// Sweep forgets expired ids and returns how many were dropped.
func (g *ReplayGuard) Sweep() int {
	now := g.now()
	dropped := 0
	g.seen.Range(func(id string, exp time.Time) bool {
		if now.After(exp) {
			g.seen.Delete(id)
			dropped++
		}
		return true
	})
	return dropped
}
