// Package ringbuffer implements the per-recording rolling sample buffer
// the realtime path appends streaming chunks into: bounded duration,
// append-with-drop-oldest, trailing-window reads, persisted to a shared
// Redis store so any realtime worker can serve the same stream.
package ringbuffer

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
)

// Snapshot is the decoded ring-buffer state: channel-major samples plus
// the metadata needed to interpret them.
type Snapshot struct {
	Channels   []string
	SampleRate float64
	Data       [][]float64 // Data[channel][sample]
}

// NumSamples returns the sample count of the first channel.
func (s *Snapshot) NumSamples() int {
	if len(s.Data) == 0 {
		return 0
	}
	return len(s.Data[0])
}

// Store is the Redis-backed ring buffer keyed by recording id. Keys use
// TTL = 2*capacitySeconds: a stream silent for that long loses its state
// and a reconnecting client must re-seed, by design (see the operations
// note this mirrors from the design docs).
type Store struct {
	client          *redis.Client
	capacitySeconds float64
}

// NewStore wraps an existing Redis client. capacitySeconds is the default
// ring buffer duration (realtime.buffer_seconds, default 30s).
func NewStore(client *redis.Client, capacitySeconds float64) *Store {
	return &Store{client: client, capacitySeconds: capacitySeconds}
}

func key(recordingID string) string {
	return "ringbuffer:" + recordingID
}

// Append adds chunk (channel-major, same channel order and sample rate as
// any existing buffer content) to the recording's buffer, trimming the
// oldest samples so the result never exceeds capacitySeconds of data, and
// refreshes the TTL to 2*capacitySeconds.
func (s *Store) Append(ctx context.Context, recordingID string, channels []string, sfreq float64, chunk [][]float64) error {
	existing, err := s.getRaw(ctx, recordingID)
	if err != nil {
		return err
	}

	var snap *Snapshot
	if existing == nil {
		snap = &Snapshot{Channels: channels, SampleRate: sfreq, Data: make([][]float64, len(channels))}
	} else {
		snap = existing
	}

	for ch := range snap.Data {
		var add []float64
		if ch < len(chunk) {
			add = chunk[ch]
		}
		snap.Data[ch] = append(snap.Data[ch], add...)
	}

	capacitySamples := int(s.capacitySeconds * sfreq)
	for ch := range snap.Data {
		if len(snap.Data[ch]) > capacitySamples {
			snap.Data[ch] = snap.Data[ch][len(snap.Data[ch])-capacitySamples:]
		}
	}

	encoded, err := encodeSnapshot(snap)
	if err != nil {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "ringbuffer.encode", err)
	}

	ttl := time.Duration(2*s.capacitySeconds) * time.Second
	if err := s.client.Set(ctx, key(recordingID), encoded, ttl).Err(); err != nil {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageTransient, "ringbuffer.append", err)
	}
	return nil
}

// GetLast returns the trailing duration seconds of buffered samples, or
// nil if the buffer is empty or absent (including expired via TTL).
func (s *Store) GetLast(ctx context.Context, recordingID string, duration time.Duration) (*Snapshot, error) {
	snap, err := s.getRaw(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}

	wantSamples := int(duration.Seconds() * snap.SampleRate)
	if wantSamples <= 0 || wantSamples >= snap.NumSamples() {
		return snap, nil
	}

	out := &Snapshot{Channels: snap.Channels, SampleRate: snap.SampleRate, Data: make([][]float64, len(snap.Data))}
	for i, ch := range snap.Data {
		out.Data[i] = append([]float64(nil), ch[len(ch)-wantSamples:]...)
	}
	return out, nil
}

// Clear deletes the recording's ring buffer key.
func (s *Store) Clear(ctx context.Context, recordingID string) error {
	if err := s.client.Del(ctx, key(recordingID)).Err(); err != nil {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageTransient, "ringbuffer.clear", err)
	}
	return nil
}

func (s *Store) getRaw(ctx context.Context, recordingID string) (*Snapshot, error) {
	data, err := s.client.Get(ctx, key(recordingID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, corepipeerrors.NewStorageError(corepipeerrors.KindStorageTransient, "ringbuffer.get", err)
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "ringbuffer.decode", err)
	}
	return snap, nil
}
