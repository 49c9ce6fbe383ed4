package conversation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveGroupScope(t *testing.T) {
	loc, err := Resolve("G1", "")
	require.NoError(t, err)
	require.Equal(t, ScopeGroup, loc.Scope)
	require.Equal(t, "G1", loc.Key)
	require.Equal(t, "groups/G1/messages", loc.MessagesPath)
	require.Equal(t, "groups/G1", loc.MetadataPath)
	require.False(t, loc.IsChat())
}

func TestResolveChatScope(t *testing.T) {
	loc, err := Resolve("G1", "I2")
	require.NoError(t, err)
	require.Equal(t, ScopeChat, loc.Scope)
	require.Equal(t, "G1_I2", loc.Key)
	require.Equal(t, "chats/G1_I2/messages", loc.MessagesPath)
	require.Equal(t, "chats/G1_I2", loc.MetadataPath)
	require.Equal(t, "I2", loc.InnerGroupID)
	require.True(t, loc.IsChat())
}

func TestResolveIsDeterministic(t *testing.T) {
	first, err := Resolve("G1", "I2")
	require.NoError(t, err)
	second, err := Resolve("G1", "I2")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestResolveRequiresGroup(t *testing.T) {
	_, err := Resolve("  ", "I2")
	require.ErrorIs(t, err, ErrGroupRequired)
}

func TestKeyDoesNotEscapeUnderscores(t *testing.T) {
	require.Equal(t, "A_B_C", Key("A_B", "C"))
	require.Equal(t, "A_B_C", Key("A", "B_C"))
}
