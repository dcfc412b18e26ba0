package engine

// Policy is the process-wide security policy. It is fixed when the engine
// is initialized and carried by every context.
type Policy struct {
	sandboxedEval bool
}

// NewPolicy returns a policy that permits or denies evalcx.
func NewPolicy(allowSandboxedEval bool) Policy {
	return Policy{sandboxedEval: allowSandboxedEval}
}

// AllowsSandboxedEval reports whether evalcx may run.
func (p Policy) AllowsSandboxedEval() bool {
	return p.sandboxedEval
}

// IsSandboxedEvalAllowed reports whether evalcx may run in cx.
func IsSandboxedEvalAllowed(cx *Context) bool {
	return cx != nil && cx.policy.AllowsSandboxedEval()
}
