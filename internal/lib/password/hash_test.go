package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashRoundTrip(t *testing.T) {
	hash, err := GetHash("cron-token-secret")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	assert.NoError(t, CompareHash(hash, "cron-token-secret"))
	assert.Error(t, CompareHash(hash, "wrong-token"))
}
