package activity

import (
	"time"

	"go.uber.org/zap"

	"github.com/research-protocol/researchx/pkg/db"
)

type Context struct {
	Logger *zap.Logger
	// EventsDB is the database holding research_events.
	EventsDB  string
	ReportsDB db.ReportsStore
	Now       func() time.Time
}

func (c *Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
