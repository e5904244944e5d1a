package drift

import (
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golden-drift/internal/shared/model"
)

func TestJaccardScorer(t *testing.T) {
	tests := []struct {
		name     string
		baseline string
		current  string
		want     float64
	}{
		{"identical", "hello world", "hello world", 1.0},
		{"case insensitive", "Hello World", "hello world", 1.0},
		{"both empty", "", "", 1.0},
		{"whitespace only", "   ", "\t", 1.0},
		{"one empty", "The refund was approved.", "", 0.0},
		{"half overlap", "a b", "a c", 1.0 / 3.0},
		{"disjoint", "yes", "no", 0.0},
		{"duplicate tokens collapse", "a a a b", "a b", 1.0},
	}

	var s JaccardScorer
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, s.Similarity(tt.baseline, tt.current), 1e-9)
		})
	}
}

func TestCompare_Identical(t *testing.T) {
	e := NewEngine(nil)
	out := e.Compare([]string{"hello world"}, []string{"hello world"}, model.DefaultThresholds())

	assert.Equal(t, 1.0, out.Similarity)
	assert.True(t, out.Passed)
	assert.Empty(t, out.Alerts)
	require.Len(t, out.DriftDetails, 1)
	assert.False(t, out.DriftDetails[0].IsDrifted)
}

func TestCompare_DroppedTurn(t *testing.T) {
	e := NewEngine(nil)
	out := e.Compare([]string{"The refund was approved."}, []string{""}, model.DefaultThresholds())

	assert.Equal(t, 0.0, out.Similarity)
	assert.False(t, out.Passed)
	require.Len(t, out.Alerts, 1)
	assert.Equal(t, model.AlertTypeDrift, out.Alerts[0].Type)
	assert.Equal(t, model.SeverityCritical, out.Alerts[0].Severity)
	assert.Equal(t, 1, out.Alerts[0].Drift.TurnNumber)
}

func TestCompare_ShorterReplayDriftsMissingTurn(t *testing.T) {
	e := NewEngine(nil)
	baseline := []string{"hi there", "your order shipped", "anything else today"}
	current := []string{"hi there", "your order shipped"}

	out := e.Compare(baseline, current, model.DefaultThresholds())

	require.Len(t, out.DriftDetails, 3)
	assert.True(t, out.DriftDetails[2].IsDrifted)
	assert.Equal(t, "", out.DriftDetails[2].Current)
	require.Len(t, out.Alerts, 1)
	assert.Equal(t, 3, out.Alerts[0].Drift.TurnNumber)
	assert.Equal(t, model.SeverityCritical, out.Alerts[0].Severity)
	assert.False(t, out.Passed)
	assert.InDelta(t, 2.0/3.0, out.Similarity, 1e-9)
}

func TestCompare_SkipsEmptyPairs(t *testing.T) {
	e := NewEngine(nil)
	out := e.Compare([]string{"a", "", "c"}, []string{"a", "", "c"}, model.DefaultThresholds())

	require.Len(t, out.DriftDetails, 2)
	assert.Equal(t, 1, out.DriftDetails[0].TurnNumber)
	assert.Equal(t, 3, out.DriftDetails[1].TurnNumber)
}

func TestCompare_NothingCompared(t *testing.T) {
	e := NewEngine(nil)
	for _, in := range [][2][]string{
		{nil, nil},
		{{""}, {}},
		{{"", ""}, {""}},
	} {
		out := e.Compare(in[0], in[1], model.DefaultThresholds())
		assert.Equal(t, 1.0, out.Similarity)
		assert.True(t, out.Passed)
		assert.Empty(t, out.DriftDetails)
	}
}

func TestCompare_WarningOnly(t *testing.T) {
	// 固定 0.8：低于阈值 0.9，但不低于 critical 线
	e := NewEngine(ScorerFunc(func(_, _ string) float64 { return 0.8 }))
	out := e.Compare([]string{"x"}, []string{"y"}, model.DefaultThresholds())

	require.Len(t, out.Alerts, 1)
	assert.Equal(t, model.SeverityWarning, out.Alerts[0].Severity)
	// 平均值 0.8 < 0.9，仍然判定失败
	assert.False(t, out.Passed)
}

func TestCompare_WarningPassesWithLowThreshold(t *testing.T) {
	scores := []float64{1.0, 0.75}
	i := 0
	e := NewEngine(ScorerFunc(func(_, _ string) float64 {
		s := scores[i]
		i++
		return s
	}))
	th := model.Thresholds{MinSemanticSimilarity: 0.8}
	out := e.Compare([]string{"a", "b"}, []string{"a", "c"}, th)

	require.Len(t, out.Alerts, 1)
	assert.Equal(t, model.SeverityWarning, out.Alerts[0].Severity)
	assert.InDelta(t, 0.875, out.Similarity, 1e-9)
	assert.True(t, out.Passed)
}

func TestCompare_PositionalShiftDriftsFollowingTurns(t *testing.T) {
	e := NewEngine(nil)
	baseline := []string{"greeting text", "question one", "question two"}
	current := []string{"greeting text", "inserted turn", "question one", "question two"}

	out := e.Compare(baseline, current, model.DefaultThresholds())

	var drifted []int
	for _, d := range out.DriftDetails {
		if d.IsDrifted {
			drifted = append(drifted, d.TurnNumber)
		}
	}
	assert.Equal(t, []int{2, 3, 4}, drifted)
}

func TestRoundedSimilarity(t *testing.T) {
	o := &Outcome{Similarity: 2.0 / 3.0}
	assert.Equal(t, 0.6667, o.RoundedSimilarity())
}

func TestReplayFailedOutcome(t *testing.T) {
	out := ReplayFailedOutcome(assert.AnError)
	assert.False(t, out.Passed)
	require.Len(t, out.Alerts, 1)
	assert.Equal(t, model.AlertTypeRegression, out.Alerts[0].Type)
	assert.Equal(t, model.RegressionReplayFailed, out.Alerts[0].Regression.Reason)
}

func genTurns() gopter.Gen {
	word := gen.OneConstOf("refund", "order", "hello", "world", "Shipped", "today", "")
	turn := gen.SliceOfN(4, word).Map(func(ws []string) string {
		return strings.Join(ws, " ")
	})
	return gen.SliceOf(turn)
}

func TestCompare_IdentityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	e := NewEngine(nil)
	th := model.Thresholds{MinSemanticSimilarity: 1.0}

	properties.Property("self comparison passes with similarity 1.0", prop.ForAll(
		func(turns []string) bool {
			out := e.Compare(turns, turns, th)
			return out.Passed && out.RoundedSimilarity() == 1.0 && len(out.Alerts) == 0
		},
		genTurns(),
	))

	properties.TestingRun(t)
}

func TestCompare_DeterminismProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	e := NewEngine(nil)
	th := model.DefaultThresholds()

	properties.Property("identical inputs yield identical outcomes", prop.ForAll(
		func(baseline, current []string) bool {
			a := e.Compare(baseline, current, th)
			b := e.Compare(baseline, current, th)
			return a.Passed == b.Passed &&
				a.Similarity == b.Similarity &&
				reflect.DeepEqual(a.DriftDetails, b.DriftDetails)
		},
		genTurns(),
		genTurns(),
	))

	properties.Property("similarity stays within [0,1]", prop.ForAll(
		func(baseline, current []string) bool {
			out := e.Compare(baseline, current, th)
			return out.Similarity >= 0 && out.Similarity <= 1
		},
		genTurns(),
		genTurns(),
	))

	properties.TestingRun(t)
}
