// Package eventbus is the pipeline's broadcast layer: job progress,
// recording status changes, and realtime feature/prediction streams are
// published to named rooms and delivered best-effort to whatever is
// subscribed, with no per-subscriber acknowledgement.
//
// It generalizes the teacher's event-logging and telemetry-shipping shape
// (internal/events.EventLogger's structured slog emission,
// internal/telemetry.BoundedQueue's tiered drop-on-backpressure delivery)
// from "log sink" to "broadcast bus": every publish is also logged via
// slog exactly as the teacher logs its own lifecycle events, and every
// subscriber channel sheds its oldest buffered message rather than
// blocking the publisher, the same trade BoundedQueue makes for its
// lower-priority tiers.
package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/neurolab-io/corepipe/internal/realtime"
)

// MessageType names the four message shapes spec's event bus carries.
type MessageType string

const (
	TypeJobProgress        MessageType = "job_progress"
	TypeRecordingUpdate    MessageType = "recording_update"
	TypeRealtimeFeatures   MessageType = "realtime_features"
	TypeRealtimePrediction MessageType = "realtime_prediction"
)

// Message is the envelope delivered to every subscriber of a room.
type Message struct {
	Room    string
	Type    MessageType
	Payload any
}

// JobProgressPayload is TypeJobProgress's payload.
type JobProgressPayload struct {
	JobID    string
	Progress float64
	Status   string
	Log      string
}

// RecordingUpdatePayload is TypeRecordingUpdate's payload.
type RecordingUpdatePayload struct {
	RecordingID string
	Status      string
	Data        map[string]any
}

const subscriberBuffer = 32

// Bus is a thread-safe, in-process named-room publish/subscribe broker.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan Message
	log    *slog.Logger
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{
		subs: make(map[string]map[int]chan Message),
		log:  slog.Default().With("component", "eventbus"),
	}
}

// RoomForJob is the room name job_progress messages for jobID are
// published to.
func RoomForJob(jobID string) string { return "job_" + jobID }

// RoomForRecording is the room name recording_update, realtime_features,
// and realtime_prediction messages for recordingID are published to.
func RoomForRecording(recordingID string) string { return "recording_" + recordingID }

// Subscribe returns a channel of every message published to room from
// this point on, and an unsubscribe function the caller must call when
// done. The channel is bounded; a slow subscriber loses its oldest
// buffered message rather than stalling the publisher.
func (b *Bus) Subscribe(room string) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Message, subscriberBuffer)
	if b.subs[room] == nil {
		b.subs[room] = make(map[int]chan Message)
	}
	b.subs[room][id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subs[room]; ok {
			delete(subs, id)
		}
	}
	return ch, unsubscribe
}

func (b *Bus) publish(msg Message) {
	b.log.Info("publish", "room", msg.Room, "type", msg.Type)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[msg.Room] {
		sendDropOldest(ch, msg)
	}
}

// sendDropOldest delivers msg without blocking, discarding the channel's
// oldest buffered message first if it is full.
func sendDropOldest(ch chan Message, msg Message) {
	select {
	case ch <- msg:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- msg:
	default:
	}
}

// PublishJobProgress emits job_progress to room job_{jobID}. It has no
// error return: delivery is best-effort and a publish with no subscribers
// is a routine, expected case, not a failure.
func (b *Bus) PublishJobProgress(jobID string, progress float64, status, log string) {
	b.publish(Message{
		Room: RoomForJob(jobID),
		Type: TypeJobProgress,
		Payload: JobProgressPayload{
			JobID: jobID, Progress: progress, Status: status, Log: log,
		},
	})
}

// PublishRecordingUpdate emits recording_update to room recording_{id}.
func (b *Bus) PublishRecordingUpdate(recordingID, status string, data map[string]any) {
	b.publish(Message{
		Room: RoomForRecording(recordingID),
		Type: TypeRecordingUpdate,
		Payload: RecordingUpdatePayload{
			RecordingID: recordingID, Status: status, Data: data,
		},
	})
}

// PublishFeatures implements realtime.Publisher, emitting
// realtime_features to room recording_{e.RecordingID}.
func (b *Bus) PublishFeatures(e realtime.FeaturesEvent) {
	b.publish(Message{
		Room:    RoomForRecording(e.RecordingID),
		Type:    TypeRealtimeFeatures,
		Payload: e,
	})
}

// PublishPrediction implements realtime.Publisher, emitting
// realtime_prediction to room recording_{e.RecordingID}.
func (b *Bus) PublishPrediction(e realtime.PredictionEvent) {
	b.publish(Message{
		Room:    RoomForRecording(e.RecordingID),
		Type:    TypeRealtimePrediction,
		Payload: e,
	})
}

// Close drops every subscriber. Subsequent Subscribe calls still work; it
// is meant for shutdown, not a terminal state.
func (b *Bus) Close(_ context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for room, subs := range b.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(b.subs, room)
	}
}
