package runtime

// resolveValue substitutes a HandlerRef leaf with the referenced
// sibling's recorded output field, leaving every other value untouched.
// outcomes is keyed by ChildSpec.Label.
func resolveValue(v any, outcomes map[string]childOutcome) any {
	ref, ok := IsHandlerRef(v)
	if !ok {
		return v
	}
	out, ok := outcomes[ref.Ref]
	if !ok {
		// Referenced sibling hasn't finished yet; caller is responsible
		// for having checked predecessorsSatisfied before reaching here,
		// so this only happens for a malformed spec. Leave the
		// HandlerRef in place rather than panicking, so it's visible in
		// the persisted snapshot for debugging.
		return v
	}
	switch ref.Field {
	case "data":
		return out.Data
	case "ex_data":
		return out.ExData
	default:
		return v
	}
}

// resolveMap applies resolveValue across every value in m, returning a
// fresh map (the spec's ChildSpec.Args/Kwargs are never mutated
// in place, since they may need to be re-resolved on a later pass if an
// earlier resolution attempt raced a still-running predecessor).
func resolveMap(m map[string]any, outcomes map[string]childOutcome) map[string]any {
	if len(m) == 0 {
		return m
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = resolveValue(v, outcomes)
	}
	return out
}

// childOutcome is the resolved (data, ex_data) pair of a finished child,
// keyed by label in ProcessBase.Schedule and consulted by resolveValue.
type childOutcome struct {
	Data   any
	ExData any
}
