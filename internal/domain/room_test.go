package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeRoomID(t *testing.T) {
	require.Equal(t, "AB12CD34", NormalizeRoomID("  ab12cd34 "))
	require.Equal(t, "", NormalizeRoomID("   "))
}

func TestValidateRoomID(t *testing.T) {
	require.NoError(t, ValidateRoomID("AB12CD34"))
	require.NoError(t, ValidateRoomID("TEAM_SYNC-1"))

	for _, bad := range []string{"", "ab12", "A B", "A/B", string(make([]byte, 65))} {
		require.ErrorIs(t, ValidateRoomID(bad), ErrInvalidRoomID, "id %q", bad)
	}
}

func TestGenerateRoomID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		id := GenerateRoomID()
		require.Len(t, id, GeneratedRoomIDLen)
		require.NoError(t, ValidateRoomID(id))
		require.Equal(t, NormalizeRoomID(id), id)
		seen[id] = struct{}{}
	}
	require.Greater(t, len(seen), 190)
}
