package indicator

import "sort"

// Indicator ids accepted in instance configuration.
const (
	IDROC          = "roc"
	IDROCAggregate = "roc_agg"
	IDQRS          = "qrs"
	IDQRSV2        = "qrs_v2"
	IDSCL          = "scl"
	IDDualBreakout = "dual_breakout"
)

// Registry maps indicator ids to their evaluators. It is assembled once
// at startup from a static list and injected into the scan runner, so
// tests can substitute a fake.
type Registry struct {
	evaluators map[string]Evaluator
}

// NewRegistry builds the registry of built-in evaluators. The two QRS
// variants stay separate registrations: their signal semantics differ
// (hard zero gate vs attenuated score).
func NewRegistry() *Registry {
	return &Registry{evaluators: map[string]Evaluator{
		IDROC:          EvaluateROC,
		IDROCAggregate: EvaluateROCAggregate,
		IDQRS:          evaluateQRSVariant(qrsV1),
		IDQRSV2:        evaluateQRSVariant(qrsV2),
		IDSCL:          EvaluateSCL,
		IDDualBreakout: EvaluateDualBreakout,
	}}
}

// Lookup returns the evaluator for an id.
func (r *Registry) Lookup(id string) (Evaluator, bool) {
	ev, ok := r.evaluators[id]
	return ev, ok
}

// Register adds or replaces an evaluator. Exposed for tests.
func (r *Registry) Register(id string, ev Evaluator) {
	r.evaluators[id] = ev
}

// IDs lists the registered ids in stable order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.evaluators))
	for id := range r.evaluators {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
