package lockfreelist

// Test hooks (kept separate so instrumentation doesn't clutter logic).
// These must not perform blocking or mutating operations that affect
// production correctness.
var (
	// searchValidateHook is invoked after a hazard slot is published and
	// before the revalidation load in search.
	searchValidateHook func(curr, next any)

	// reclaimHook is invoked each time the registry frees a retired node.
	reclaimHook func(node any)
)
