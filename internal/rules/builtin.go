package rules

import "github.com/opensource-finance/kestrel/internal/domain"

func fp(v float64) *float64 { return &v }

// BuiltinRules returns the default screening rule set loaded when a tenant has
// no rules configured. Tenant rules from the database replace these wholesale.
func BuiltinRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:          "RULE-EXC-001",
			Name:        "Exception volume",
			Description: "Flags runs producing a high number of exceptions",
			Version:     "1.0",
			Expression:  "exceptions",
			Bands: []domain.RuleBand{
				{UpperLimit: fp(1), SubRuleRef: domain.RuleOutcomePass, Reason: "no exceptions"},
				{LowerLimit: fp(1), UpperLimit: fp(10), SubRuleRef: domain.RuleOutcomeReview, Reason: "exceptions present"},
				{LowerLimit: fp(10), SubRuleRef: domain.RuleOutcomeFail, Reason: "high exception volume"},
			},
			Weight:  1.0,
			Enabled: true,
		},
		{
			ID:          "RULE-SCORE-001",
			Name:        "Severe exception score",
			Description: "Flags journal runs with a severe top exception score",
			Version:     "1.0",
			Expression:  `kind == "JE" && max_score >= 75.0`,
			Bands: []domain.RuleBand{
				{UpperLimit: fp(1), SubRuleRef: domain.RuleOutcomePass, Reason: "no severe entries"},
				{LowerLimit: fp(1), SubRuleRef: domain.RuleOutcomeFail, Reason: "severe journal entry risk score"},
			},
			Weight:  2.0,
			Enabled: true,
		},
		{
			ID:          "RULE-RERUN-001",
			Name:        "Repeated runs",
			Description: "Flags engagements re-running analyses at unusual frequency",
			Version:     "1.0",
			Expression:  "recent_runs",
			Bands: []domain.RuleBand{
				{UpperLimit: fp(20), SubRuleRef: domain.RuleOutcomePass, Reason: "normal run frequency"},
				{LowerLimit: fp(20), SubRuleRef: domain.RuleOutcomeReview, Reason: "unusual run frequency"},
			},
			Weight:  0.5,
			Enabled: true,
		},
	}
}
