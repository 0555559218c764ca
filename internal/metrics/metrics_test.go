package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMustRegister_Repeatable(t *testing.T) {
	// The default registry pre-registers the Go and process collectors, and
	// every API router build registers ours. Neither may panic on repeats.
	require.NotPanics(t, func() {
		MustRegister()
		MustRegister()
	})
}
