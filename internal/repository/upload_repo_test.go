package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/groupchat-api/internal/models"
)

func TestUploadRepositoryListByUpload(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUploadRepository(db)
	ctx := context.Background()

	for _, record := range []models.UploadRecord{
		{UploadID: "batch-1", UserID: "u1", Conversation: "groups/G1/messages", FileName: "a.png", URL: "https://cdn/a.png", MimeType: "image/png", SizeBytes: 10},
		{UploadID: "batch-1", UserID: "u1", Conversation: "groups/G1/messages", FileName: "b.pdf", URL: "https://cdn/b.pdf", MimeType: "application/pdf", SizeBytes: 20},
		{UploadID: "batch-2", UserID: "u2", Conversation: "groups/G1/messages", FileName: "c.png", URL: "https://cdn/c.png", MimeType: "image/png", SizeBytes: 30},
	} {
		record := record
		require.NoError(t, repo.Create(ctx, &record))
		require.NotZero(t, record.ID)
	}

	records, err := repo.ListByUpload(ctx, "batch-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "a.png", records[0].FileName)
	require.Equal(t, "b.pdf", records[1].FileName)

	records, err = repo.ListByUpload(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, records)
}
