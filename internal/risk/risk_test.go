package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	arbengine "github.com/vantablack/arbengine"
)

func TestEvaluate_CleanCandidateProceedsWithoutReview(t *testing.T) {
	g := New()
	in := Input{
		Breakdown:     arbengine.ProfitBreakdown{Profitable: true},
		Threat:        arbengine.ThreatAssessment{Recommendation: arbengine.RecommendPublicExecute},
		CapitalAtRisk: 0.05,
	}
	result := g.Evaluate(in)
	assert.True(t, result.ShouldProceed)
	assert.False(t, result.RequiresReview)
	assert.Equal(t, arbengine.RiskNegligible, result.OverallLevel)
}

func TestEvaluate_RetailVictimForcesBlock(t *testing.T) {
	g := New()
	in := Input{
		Breakdown:           arbengine.ProfitBreakdown{Profitable: true},
		Threat:              arbengine.ThreatAssessment{Recommendation: arbengine.RecommendPublicExecute},
		TargetsRetailVictim: true,
	}
	result := g.Evaluate(in)
	assert.False(t, result.ShouldProceed)
	assert.True(t, result.RequiresReview)
	assert.Contains(t, result.Recommendations, "abort: candidate extracts value from an identifiable retail counterparty")
}

func TestEvaluate_HighCapitalAtRiskUnprofitableEscalates(t *testing.T) {
	g := New()
	in := Input{
		Breakdown:     arbengine.ProfitBreakdown{Profitable: false},
		Threat:        arbengine.ThreatAssessment{Recommendation: arbengine.RecommendAbort},
		CapitalAtRisk: 0.9,
	}
	result := g.Evaluate(in)
	assert.True(t, result.RequiresReview)
}

func TestEvaluate_RecommendationsAreDeduplicatedAndSorted(t *testing.T) {
	g := New()
	in := Input{
		Breakdown:         arbengine.ProfitBreakdown{Profitable: false},
		Threat:            arbengine.ThreatAssessment{Recommendation: arbengine.RecommendAbort},
		CapitalAtRisk:     0.95,
		RecentFailureRate: 0.9,
	}
	result := g.Evaluate(in)
	seen := make(map[string]bool)
	for _, r := range result.Recommendations {
		assert.False(t, seen[r], "duplicate recommendation: %s", r)
		seen[r] = true
	}
}

func TestEvaluate_CompositeScoreClampedToUnitInterval(t *testing.T) {
	g := New()
	in := Input{
		Breakdown:           arbengine.ProfitBreakdown{Profitable: false},
		Threat:              arbengine.ThreatAssessment{Recommendation: arbengine.RecommendAbort, SandwichProb: 1, FrontrunProb: 1},
		CapitalAtRisk:       1,
		TargetsRetailVictim: true,
		RecentFailureRate:   1,
		NovelPathShape:      true,
	}
	result := g.Evaluate(in)
	assert.LessOrEqual(t, result.CompositeScore, 1.0)
	assert.GreaterOrEqual(t, result.CompositeScore, 0.0)
	assert.Equal(t, arbengine.RiskCritical, result.OverallLevel)
	assert.False(t, result.ShouldProceed)
}
