package storage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type flakyStore struct {
	err   error
	calls int
}

func (f *flakyStore) Upload(_ context.Context, name string, reader io.Reader) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	_, _ = io.Copy(io.Discard, reader)
	return "https://cdn.example.com/" + name, nil
}

func TestGuardedPassesThrough(t *testing.T) {
	store := &flakyStore{}
	guarded := NewGuarded("test", store, BreakerSettings{}, zerolog.Nop())

	url, err := guarded.Upload(context.Background(), "chats/G1_I2/a.png", bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/chats/G1_I2/a.png", url)
	require.Equal(t, "closed", guarded.State())
}

func TestGuardedOpensAfterConsecutiveFailures(t *testing.T) {
	store := &flakyStore{err: errors.New("503 from store")}
	guarded := NewGuarded("test", store, BreakerSettings{MaxFailures: 2, OpenFor: time.Minute}, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, err := guarded.Upload(context.Background(), "a", bytes.NewReader(nil))
		require.EqualError(t, err, "503 from store")
	}

	_, err := guarded.Upload(context.Background(), "a", bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrStorageUnavailable)
	require.Equal(t, 2, store.calls)
	require.Equal(t, "open", guarded.State())
}

func TestGuardedIgnoresCancelledRequests(t *testing.T) {
	store := &flakyStore{err: context.Canceled}
	guarded := NewGuarded("test", store, BreakerSettings{MaxFailures: 1}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := guarded.Upload(context.Background(), "a", bytes.NewReader(nil))
		require.ErrorIs(t, err, context.Canceled)
	}
	require.Equal(t, "closed", guarded.State())
}

func TestThumbnailFitsBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1280, 640))
	for x := 0; x < 1280; x++ {
		src.Set(x, x%640, color.RGBA{R: 200, A: 255})
	}
	var encoded bytes.Buffer
	require.NoError(t, png.Encode(&encoded, src))

	thumb, err := Thumbnail(&encoded)
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(thumb))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.Equal(t, 320, cfg.Width)
	require.Equal(t, 160, cfg.Height)
}

func TestThumbnailRejectsNonImages(t *testing.T) {
	_, err := Thumbnail(bytes.NewReader([]byte("%PDF-1.4")))
	require.Error(t, err)
}
