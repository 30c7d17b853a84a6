package rules

import "log/slog"

// DefaultRegistry wires the built-in rule set in its canonical order.
// whaleSeed preloads the whale watch-set; the returned whale rule is also
// handed back for admin mutation.
func DefaultRegistry(log *slog.Logger, whaleThresholdUSD float64, whaleSeed []string) (*Registry, *WhaleMovementRule) {
	reg := NewRegistry(log)
	whale := NewWhaleMovementRule(whaleThresholdUSD, whaleSeed)

	for _, r := range []Rule{
		NewAnomalyScoreRule(),
		NewContractExploitRule(),
		whale,
		NewFlashLoanRule(),
		NewMoneyLaunderingRule(),
		NewCrossChainArbitrageRule(),
		NewDarkWebRule(),
		NewInsiderTradingRule(),
		NewPonziRule(),
	} {
		// ids are unique by construction
		_ = reg.Register(r)
	}
	return reg, whale
}
