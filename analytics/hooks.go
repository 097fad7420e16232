package analytics

import (
	"context"
	"sync"
	"time"

	"leaderboardkit/core"
	"leaderboardkit/engine"
)

// Hook receives leaderboard events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// HookFunc adapts a function to Hook.
type HookFunc func(e core.Event)

func (f HookFunc) OnEvent(e core.Event) { f(e) }

// BridgeHook bridges an event source to multiple hooks.
type BridgeHook struct{ hooks []Hook }

func NewBridge(hooks ...Hook) *BridgeHook { return &BridgeHook{hooks: hooks} }

func (b *BridgeHook) OnEvent(e core.Event) {
	for _, h := range b.hooks {
		h.OnEvent(e)
	}
}

// Attach feeds every event published on bus to hook. Returns unsubscribe func.
func Attach(bus *engine.EventBus, hook Hook) func() {
	return bus.SubscribeAll(func(_ context.Context, e core.Event) { hook.OnEvent(e) })
}

// Activity tracks daily unique submitters and outcomes per day.
type Activity struct {
	mu         sync.Mutex
	submitters map[string]map[core.Identity]struct{}
	outcomes   map[string]map[core.EventType]int64
}

func NewActivity() *Activity {
	return &Activity{
		submitters: map[string]map[core.Identity]struct{}{},
		outcomes:   map[string]map[core.EventType]int64{},
	}
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func (a *Activity) OnEvent(e core.Event) {
	switch e.Type {
	case core.EventScoreCommitted, core.EventScoreAborted, core.EventSubmissionFailed:
	default:
		return
	}
	day := dayKey(e.Time)
	a.mu.Lock()
	defer a.mu.Unlock()
	if e.Identity != "" {
		m := a.submitters[day]
		if m == nil {
			m = map[core.Identity]struct{}{}
			a.submitters[day] = m
		}
		m[e.Identity] = struct{}{}
	}
	o := a.outcomes[day]
	if o == nil {
		o = map[core.EventType]int64{}
		a.outcomes[day] = o
	}
	o[e.Type]++
}

// Submitters returns the number of distinct identities that submitted on day (YYYY-MM-DD).
func (a *Activity) Submitters(day string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.submitters[day])
}

// Outcomes returns how many submissions of each kind resolved on day.
func (a *Activity) Outcomes(day string) map[core.EventType]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[core.EventType]int64, len(a.outcomes[day]))
	for k, v := range a.outcomes[day] {
		out[k] = v
	}
	return out
}

// QualifyRate is the share of submissions on day that made it onto the board.
func (a *Activity) QualifyRate(day string) float64 {
	o := a.Outcomes(day)
	total := o[core.EventScoreCommitted] + o[core.EventScoreAborted]
	if total == 0 {
		return 0
	}
	return float64(o[core.EventScoreCommitted]) / float64(total)
}
