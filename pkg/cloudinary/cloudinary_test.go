package cloudinary

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.Error(t, err)
}

func TestPlacementKeepsConversationFolders(t *testing.T) {
	svc := &Service{folder: "groupchat/media", now: func() time.Time { return time.Unix(0, 42) }}

	folder, publicID := svc.placement("chats/G1_I2/Holiday Photo!.jpg")
	require.Equal(t, "groupchat/media/chats/G1_I2", folder)
	require.Equal(t, "Holiday-Photo-42", publicID)

	folder, publicID = svc.placement("../../.png")
	require.Equal(t, "groupchat/media", folder)
	require.Equal(t, "upload-42", publicID)
}
