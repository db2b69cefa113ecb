package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaim_Exclusive(t *testing.T) {
	const adapter = "test-eth0"
	defer Release(adapter, "a")

	require.NoError(t, Claim(adapter, "a"))
	require.NoError(t, Claim(adapter, "a"))
	require.ErrorIs(t, Claim(adapter, "b"), ErrLinkUnavailable)

	// a foreign release does not drop the claim
	Release(adapter, "b")
	require.ErrorIs(t, Claim(adapter, "b"), ErrLinkUnavailable)

	Release(adapter, "a")
	require.NoError(t, Claim(adapter, "b"))
	Release(adapter, "b")
}

func TestEnumerateAdapters(t *testing.T) {
	adapters, err := EnumerateAdapters()
	require.NoError(t, err)
	for _, a := range adapters {
		assert.NotEmpty(t, a.Name)
		assert.Contains(t, a.String(), a.Name)
	}
}
