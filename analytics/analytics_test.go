package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaderboardkit/core"
	"leaderboardkit/engine"
)

func outcome(o core.Outcome, id core.Identity, lb core.Leaderboard) core.Event {
	return core.NewOutcomeEvent("Leaders", core.Result{
		Entry:       core.ScoreEntry{Identity: id, Score: 10},
		Outcome:     o,
		Leaderboard: lb,
	}, 3*time.Millisecond)
}

func TestMetrics_OnEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	full := core.Leaderboard{Entries: []core.ScoreEntry{{Identity: "a", Score: 30}, {Identity: "b", Score: 20}}, Max: 2}
	m.OnEvent(outcome(core.OutcomeCommitted, "a", full))
	m.OnEvent(outcome(core.OutcomeAborted, "c", core.Leaderboard{}))
	m.OnEvent(outcome(core.OutcomeAborted, "d", core.Leaderboard{}))
	m.OnEvent(core.NewCorruptData("Leaders", &core.CorruptEntryError{Index: 0, Field: "score", Reason: "is missing"}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues("committed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Submissions.WithLabelValues("aborted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CorruptRecords))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LeaderboardEntries))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.LowestScore))

	count, err := testutil.GatherAndCount(reg, "leaderboardkit_transaction_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetrics_LowestScoreOnlyWhenFull(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetLeaderboard(core.Leaderboard{Entries: []core.ScoreEntry{{Identity: "a", Score: 30}}, Max: 5})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LowestScore))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LeaderboardEntries))
}

func TestMetrics_ObserveHTTP(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveHTTP("GET", "/leaders", 200, time.Millisecond)
	m.ObserveHTTP("GET", "/leaders", 200, time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/leaders", "200")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.OnEvent(outcome(core.OutcomeCommitted, "a", core.Leaderboard{}))
	m.SetLeaderboard(core.Leaderboard{})
	m.ObserveHTTP("GET", "/", 200, 0)
}

func TestActivity(t *testing.T) {
	a := NewActivity()
	day := dayKey(time.Now())

	a.OnEvent(outcome(core.OutcomeCommitted, "a", core.Leaderboard{}))
	a.OnEvent(outcome(core.OutcomeAborted, "a", core.Leaderboard{}))
	a.OnEvent(outcome(core.OutcomeAborted, "b", core.Leaderboard{}))
	a.OnEvent(outcome(core.OutcomeAborted, "c", core.Leaderboard{}))
	a.OnEvent(core.NewLeaderboardChanged("Leaders", core.Leaderboard{}))

	assert.Equal(t, 3, a.Submitters(day))
	assert.Equal(t, int64(3), a.Outcomes(day)[core.EventScoreAborted])
	assert.InDelta(t, 0.25, a.QualifyRate(day), 1e-9)
	assert.Equal(t, 0.0, a.QualifyRate("1999-01-01"))
}

func TestAttachAndBridge(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	activity := NewActivity()
	var seen []core.EventType
	unsubscribe := Attach(bus, NewBridge(activity, HookFunc(func(e core.Event) { seen = append(seen, e.Type) })))

	bus.Publish(context.Background(), outcome(core.OutcomeCommitted, "a", core.Leaderboard{}))
	unsubscribe()
	bus.Publish(context.Background(), outcome(core.OutcomeCommitted, "b", core.Leaderboard{}))

	assert.Equal(t, []core.EventType{core.EventScoreCommitted}, seen)
	assert.Equal(t, 1, activity.Submitters(dayKey(time.Now())))
}
