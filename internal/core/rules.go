package core

import "housingcore/pkg/domain"

// DefaultRulesEngine returns an engine with every invariant rule registered.
func DefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewApplicantExclusivityRule())
	engine.Register(NewUnitInventoryRule())
	engine.Register(LifecycleTransitionRule())
	engine.Register(NewOfficerWindowRule())
	return engine
}

// decodeChange extracts a typed entity from a change payload slot.
func decodeChange[T any](payload any) (T, bool) {
	value, ok := payload.(T)
	return value, ok
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
