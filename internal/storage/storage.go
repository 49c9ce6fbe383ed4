// Package storage wraps the object stores that hold uploaded media.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/noah-isme/groupchat-api/internal/config"
	"github.com/noah-isme/groupchat-api/pkg/cloudinary"
	"github.com/noah-isme/groupchat-api/pkg/s3storage"
)

// ErrStorageUnavailable is returned while the breaker is open.
var ErrStorageUnavailable = errors.New("object storage temporarily unavailable")

// FileStorage abstracts upload destinations. name is the object key relative
// to the store's root (for example "chats/G1_I2/photo.jpg").
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// BreakerSettings tunes the storage circuit breaker.
type BreakerSettings struct {
	MaxFailures uint32
	OpenFor     time.Duration
	Interval    time.Duration
}

// Guarded trips after consecutive upload failures and fails fast until the
// store recovers.
type Guarded struct {
	next FileStorage
	cb   *gobreaker.CircuitBreaker
}

// NewGuarded wraps next in a circuit breaker.
func NewGuarded(name string, next FileStorage, settings BreakerSettings, logger zerolog.Logger) *Guarded {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.OpenFor <= 0 {
		settings.OpenFor = 30 * time.Second
	}
	log := logger.With().Str("component", "storage_breaker").Str("store", name).Logger()

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		// A caller abandoning its request says nothing about the store.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("storage circuit breaker state changed")
		},
	})

	return &Guarded{next: next, cb: cb}
}

func (g *Guarded) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	result, err := g.cb.Execute(func() (interface{}, error) {
		return g.next.Upload(ctx, name, reader)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", ErrStorageUnavailable
		}
		return "", err
	}
	return result.(string), nil
}

// State reports the breaker state, for health reporting.
func (g *Guarded) State() string {
	return g.cb.State().String()
}

// Open builds the store selected by cfg.UploadDriver, wrapped in a breaker.
func Open(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Guarded, error) {
	var (
		store FileStorage
		err   error
	)

	switch cfg.UploadDriver {
	case config.UploadDriverS3:
		store, err = s3storage.New(ctx, s3storage.Config{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			PublicBaseURL: cfg.S3PublicBaseURL,
		}, logger)
	case config.UploadDriverCloudinary:
		store, err = cloudinary.New(cloudinary.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported upload driver %q", cfg.UploadDriver)
	}
	if err != nil {
		return nil, err
	}

	return NewGuarded(cfg.UploadDriver, store, BreakerSettings{}, logger), nil
}
