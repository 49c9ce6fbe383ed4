package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/groupchat-api/internal/conversation"
	"github.com/noah-isme/groupchat-api/internal/dto"
	"github.com/noah-isme/groupchat-api/internal/realtime"
)

const progressTTL = time.Hour

// ProgressSink receives per-file upload progress.
type ProgressSink interface {
	Report(ctx context.Context, loc conversation.Location, progress dto.UploadProgress)
	Load(ctx context.Context, uploadID string) ([]dto.UploadProgress, error)
}

type redisProgressSink struct {
	client *redis.Client
	prefix string
	bus    realtime.Bus
	logger zerolog.Logger
}

// NewProgressSink stores progress in a Redis hash per upload id and fans every
// update out on the bus. A nil client keeps only the bus fan-out.
func NewProgressSink(client *redis.Client, channelBase string, bus realtime.Bus, logger zerolog.Logger) ProgressSink {
	if channelBase == "" {
		channelBase = "groupchat"
	}
	return &redisProgressSink{
		client: client,
		prefix: channelBase + ":upload:",
		bus:    bus,
		logger: logger.With().Str("component", "upload_progress").Logger(),
	}
}

func (p *redisProgressSink) Report(ctx context.Context, loc conversation.Location, progress dto.UploadProgress) {
	payload, err := json.Marshal(progress)
	if err != nil {
		return
	}

	if p.client != nil {
		key := p.prefix + progress.UploadID
		pipe := p.client.TxPipeline()
		pipe.HSet(ctx, key, strconv.Itoa(progress.Index), payload)
		pipe.Expire(ctx, key, progressTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			p.logger.Debug().Err(err).Str("upload_id", progress.UploadID).Msg("failed to store upload progress")
		}
	}

	if p.bus != nil {
		if err := p.bus.Publish(ctx, realtime.Change{
			Conversation: loc.MetadataPath,
			Kind:         realtime.KindUploadProgress,
			Payload:      payload,
		}); err != nil {
			p.logger.Debug().Err(err).Msg("failed to fan out upload progress")
		}
	}
}

func (p *redisProgressSink) Load(ctx context.Context, uploadID string) ([]dto.UploadProgress, error) {
	if p.client == nil {
		return nil, nil
	}
	values, err := p.client.HGetAll(ctx, p.prefix+uploadID).Result()
	if err != nil {
		return nil, fmt.Errorf("read upload progress: %w", err)
	}

	out := make([]dto.UploadProgress, 0, len(values))
	for _, raw := range values {
		var progress dto.UploadProgress
		if err := json.Unmarshal([]byte(raw), &progress); err != nil {
			continue
		}
		out = append(out, progress)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// progressReader reports integer percentages as the wrapped reader is drained.
type progressReader struct {
	reader io.Reader
	total  int64
	read   int64
	last   int
	report func(percent int)
}

func newProgressReader(reader io.Reader, total int64, report func(int)) *progressReader {
	return &progressReader{reader: reader, total: total, last: -1, report: report}
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.read += int64(n)
	if r.total > 0 {
		percent := int(r.read * 100 / r.total)
		if percent > 100 {
			percent = 100
		}
		// 100 is reported once the store has accepted the object.
		if percent != r.last && percent < 100 {
			r.last = percent
			r.report(percent)
		}
	}
	return n, err
}
