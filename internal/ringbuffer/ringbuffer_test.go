package ringbuffer

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStore(client, 30)
}

func TestAppendAccumulatesSamples(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	chunk1 := [][]float64{{1, 2, 3}, {4, 5, 6}}
	if err := store.Append(ctx, "rec-1", []string{"Fz", "Pz"}, 10, chunk1); err != nil {
		t.Fatalf("Append: %v", err)
	}
	chunk2 := [][]float64{{7, 8}, {9, 10}}
	if err := store.Append(ctx, "rec-1", []string{"Fz", "Pz"}, 10, chunk2); err != nil {
		t.Fatalf("Append: %v", err)
	}

	snap, err := store.GetLast(ctx, "rec-1", time.Hour)
	if err != nil {
		t.Fatalf("GetLast: %v", err)
	}
	want := []float64{1, 2, 3, 7, 8}
	for i, v := range want {
		if snap.Data[0][i] != v {
			t.Errorf("Data[0][%d] = %v, want %v", i, snap.Data[0][i], v)
		}
	}
}

func TestAppendDropsOldestOnOverflow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t) // capacity 30s

	sfreq := 10.0
	samples := make([]float64, 0, 400)
	for i := 0; i < 400; i++ {
		samples = append(samples, float64(i))
	}
	if err := store.Append(ctx, "rec-1", []string{"Fz"}, sfreq, [][]float64{samples}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	snap, err := store.GetLast(ctx, "rec-1", time.Hour)
	if err != nil {
		t.Fatalf("GetLast: %v", err)
	}
	wantLen := int(30 * sfreq)
	if snap.NumSamples() != wantLen {
		t.Fatalf("NumSamples() = %d, want %d", snap.NumSamples(), wantLen)
	}
	if snap.Data[0][0] != samples[len(samples)-wantLen] {
		t.Errorf("oldest retained sample = %v, want %v", snap.Data[0][0], samples[len(samples)-wantLen])
	}
	if snap.Data[0][wantLen-1] != samples[len(samples)-1] {
		t.Errorf("newest sample = %v, want %v", snap.Data[0][wantLen-1], samples[len(samples)-1])
	}
}

func TestGetLastTrimsToDuration(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sfreq := 10.0
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = float64(i)
	}
	store.Append(ctx, "rec-1", []string{"Fz"}, sfreq, [][]float64{samples})

	snap, err := store.GetLast(ctx, "rec-1", 2*time.Second)
	if err != nil {
		t.Fatalf("GetLast: %v", err)
	}
	if snap.NumSamples() != 20 {
		t.Fatalf("NumSamples() = %d, want 20", snap.NumSamples())
	}
	if snap.Data[0][0] != 80 {
		t.Errorf("Data[0][0] = %v, want 80", snap.Data[0][0])
	}
}

func TestGetLastOnMissingRecordingReturnsNil(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	snap, err := store.GetLast(ctx, "no-such-recording", time.Second)
	if err != nil {
		t.Fatalf("GetLast: %v", err)
	}
	if snap != nil {
		t.Errorf("expected nil snapshot for absent recording, got %+v", snap)
	}
}

func TestClearRemovesBuffer(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	store.Append(ctx, "rec-1", []string{"Fz"}, 10, [][]float64{{1, 2, 3}})
	if err := store.Clear(ctx, "rec-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	snap, err := store.GetLast(ctx, "rec-1", time.Hour)
	if err != nil {
		t.Fatalf("GetLast: %v", err)
	}
	if snap != nil {
		t.Errorf("expected nil snapshot after Clear, got %+v", snap)
	}
}
