package transcript

// The backend occasionally reuses one correlation id across content of
// different kinds (reasoning and the assistant text that follows it, or a
// tool call and its surrounding prose). These helpers isolate the
// workaround: colliding content forks to a deterministic derived id so the
// original line is never overwritten. If the backend ever guarantees unique
// ids per content kind this file goes away and reducer ids become the raw
// correlation ids everywhere.

// forkCollidingID derives a stable id for content whose correlation id is
// already claimed by a line of a different kind.
func forkCollidingID(base, discriminator string) string {
	return base + "#" + discriminator
}

// forkToolCallID derives a stable id for a tool call whose base id is
// already taken, keyed by the call id so parallel calls sharing one
// correlation id land on distinct lines.
func forkToolCallID(base, callID string) string {
	if callID == "" {
		return base + "#tool_call"
	}
	return DerivedID(base, callID)
}
