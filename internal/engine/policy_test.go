package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy(t *testing.T) {
	tests := []struct {
		name  string
		allow bool
	}{
		{name: "permitted", allow: true},
		{name: "denied", allow: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, root := newTestEngine(t, Options{Policy: NewPolicy(tt.allow)})

			assert.Equal(t, tt.allow, e.Policy().AllowsSandboxedEval())
			assert.Equal(t, tt.allow, root.Policy().AllowsSandboxedEval())
			assert.Equal(t, tt.allow, IsSandboxedEvalAllowed(root))
		})
	}
}

func TestPolicyZeroValueDenies(t *testing.T) {
	assert.False(t, Policy{}.AllowsSandboxedEval())
	assert.False(t, IsSandboxedEvalAllowed(nil))
}
