// Package presence keeps per-conversation typing flags as last-writer-wins
// registers in Redis. The flags are best-effort and purely cosmetic.
package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL = 10 * time.Minute
	// maxClockSkew bounds how far ahead of the server a client timestamp may
	// be. A register can then shadow later writes for at most this long.
	maxClockSkew = 5 * time.Second
)

// A write replaces the stored register only when its (client, server)
// timestamp pair is strictly newer. Values are "state:clientMillis:serverMillis".
var lwwScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if current then
  local _, _, cts, sts = string.find(current, '^[01]:(%d+):(%d+)$')
  if cts then
    local nc = tonumber(ARGV[3])
    local ns = tonumber(ARGV[4])
    cts = tonumber(cts)
    sts = tonumber(sts)
    if nc < cts or (nc == cts and ns <= sts) then
      return 0
    end
  end
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2] .. ':' .. ARGV[3] .. ':' .. ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// Register is a single participant's typing flag.
type Register struct {
	Typing       bool
	ClientMillis int64
	ServerMillis int64
}

// Store reads and writes typing registers.
type Store struct {
	client    *redis.Client
	prefix    string
	staleness time.Duration
	ttl       time.Duration
	skew      time.Duration
	now       func() time.Time
}

// NewStore builds a Store. Keys are namespaced under prefix; true flags older
// than staleAfter read as false.
func NewStore(client *redis.Client, prefix string, staleAfter time.Duration) *Store {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Second
	}
	if prefix == "" {
		prefix = "presence"
	}
	return &Store{
		client:    client,
		prefix:    prefix,
		staleness: staleAfter,
		ttl:       defaultTTL,
		skew:      maxClockSkew,
		now:       time.Now,
	}
}

// Set writes userID's flag. clientAt is the client's event time; a zero value
// falls back to the server clock and a value too far in the future is pulled
// back to the skew limit. It reports whether the write won.
func (s *Store) Set(ctx context.Context, conversation, userID string, typing bool, clientAt time.Time) (bool, error) {
	if s == nil || s.client == nil {
		return false, errors.New("presence store not configured")
	}
	if userID == "" {
		return false, errors.New("user id is required")
	}

	serverAt := s.now()
	if clientAt.IsZero() {
		clientAt = serverAt
	}
	if limit := serverAt.Add(s.skew); clientAt.After(limit) {
		clientAt = limit
	}

	state := "0"
	if typing {
		state = "1"
	}

	result, err := lwwScript.Run(ctx, s.client, []string{s.key(conversation)},
		userID,
		state,
		clientAt.UnixMilli(),
		serverAt.UnixMilli(),
		s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("write typing register: %w", err)
	}
	return result == 1, nil
}

// Snapshot returns every participant's effective typing flag.
func (s *Store) Snapshot(ctx context.Context, conversation string) (map[string]bool, error) {
	if s == nil || s.client == nil {
		return map[string]bool{}, nil
	}

	values, err := s.client.HGetAll(ctx, s.key(conversation)).Result()
	if err != nil {
		return nil, fmt.Errorf("read typing registers: %w", err)
	}

	cutoff := s.now().Add(-s.staleness).UnixMilli()
	out := make(map[string]bool, len(values))
	for userID, raw := range values {
		register, ok := parseRegister(raw)
		if !ok {
			continue
		}
		out[userID] = register.Typing && register.ServerMillis >= cutoff
	}
	return out, nil
}

func (s *Store) key(conversation string) string {
	return s.prefix + ":typing:" + conversation
}

func parseRegister(raw string) (Register, bool) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return Register{}, false
	}
	clientMillis, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Register{}, false
	}
	serverMillis, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Register{}, false
	}
	return Register{Typing: parts[0] == "1", ClientMillis: clientMillis, ServerMillis: serverMillis}, true
}

// OthersTyping lists the users whose flag is true, excluding viewerID, sorted.
func OthersTyping(flags map[string]bool, viewerID string) []string {
	out := make([]string, 0, len(flags))
	for userID, typing := range flags {
		if typing && userID != viewerID {
			out = append(out, userID)
		}
	}
	sort.Strings(out)
	return out
}
