package scheduler

import (
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/robfig/cron/v3"
)

const DefaultQuotaReset = "@daily"

// Quota limits API requests per local day. Zero limit means unlimited.
type Quota struct {
	mu      sync.Mutex
	limit   int
	used    int
	loc     *time.Location
	sched   cron.Schedule
	resetAt time.Time
}

// NewQuota counts requests until next time matching reset (standard cron syntax)
// in UTC offset tz hours.
func NewQuota(limit int, tz int, reset string) (*Quota, error) {
	if reset == "" {
		reset = DefaultQuotaReset
	}
	sched, err := cron.ParseStandard(reset)
	if err != nil {
		return nil, errors.Annotatef(err, "quota reset=%s", reset)
	}
	q := &Quota{
		limit: limit,
		loc:   time.FixedZone("", tz*3600),
		sched: sched,
	}
	return q, nil
}

func (q *Quota) roll(now time.Time) {
	if q.resetAt.IsZero() {
		q.resetAt = q.sched.Next(now.In(q.loc))
		return
	}
	if !now.Before(q.resetAt) {
		q.used = 0
		q.resetAt = q.sched.Next(now.In(q.loc))
	}
}

func (q *Quota) Allow(now time.Time) bool {
	if q == nil || q.limit <= 0 {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.roll(now)
	return q.used < q.limit
}

func (q *Quota) Use(now time.Time) {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.roll(now)
	q.used++
}

// Remaining returns -1 when unlimited.
func (q *Quota) Remaining(now time.Time) int {
	if q == nil || q.limit <= 0 {
		return -1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.roll(now)
	if q.used >= q.limit {
		return 0
	}
	return q.limit - q.used
}

func (q *Quota) ResetAt() time.Time {
	if q == nil {
		return time.Time{}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.resetAt
}
