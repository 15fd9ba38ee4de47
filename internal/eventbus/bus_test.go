package eventbus

import (
	"testing"
	"time"

	"github.com/neurolab-io/corepipe/internal/realtime"
)

func TestPublishJobProgressDeliversToSubscriber(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe(RoomForJob("job-1"))
	defer unsubscribe()

	b.PublishJobProgress("job-1", 0.4, "running", "notch")

	select {
	case msg := <-ch:
		if msg.Type != TypeJobProgress {
			t.Errorf("Type = %v, want %v", msg.Type, TypeJobProgress)
		}
		payload, ok := msg.Payload.(JobProgressPayload)
		if !ok {
			t.Fatalf("Payload is %T, want JobProgressPayload", msg.Payload)
		}
		if payload.Progress != 0.4 || payload.Log != "notch" {
			t.Errorf("payload = %+v, want progress 0.4 log notch", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestPublishToRoomWithNoSubscribersDoesNotBlock(t *testing.T) {
	b := New()
	done := make(chan struct{})
	go func() {
		b.PublishJobProgress("job-none", 1.0, "completed", "")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish with no subscribers blocked")
	}
}

func TestSlowSubscriberDropsOldestRatherThanBlockingPublisher(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe(RoomForJob("job-2"))
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		b.PublishJobProgress("job-2", float64(i)/100, "running", "")
	}

	// The channel should be full but the publisher must not have blocked;
	// draining it should surface recent, not oldest, progress values.
	var first, last JobProgressPayload
	drained := 0
	for {
		select {
		case msg := <-ch:
			last = msg.Payload.(JobProgressPayload)
			if drained == 0 {
				first = last
			}
			drained++
		default:
			if drained == 0 {
				t.Fatal("expected at least one buffered message")
			}
			if first.Progress == 0 || last.Progress != float64(subscriberBuffer+4)/100 {
				t.Errorf("drained progress %v..%v, want oldest dropped and newest %v kept", first.Progress, last.Progress, float64(subscriberBuffer+4)/100)
			}
			return
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe(RoomForJob("job-3"))
	unsubscribe()

	b.PublishJobProgress("job-3", 0.5, "running", "")

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected no message after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishFeaturesAndPredictionRouteToRecordingRoom(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe(RoomForRecording("rec-1"))
	defer unsubscribe()

	b.PublishFeatures(realtime.FeaturesEvent{RecordingID: "rec-1", Features: map[string]float64{"rel_alpha": 0.6}})
	b.PublishPrediction(realtime.PredictionEvent{RecordingID: "rec-1", Prediction: 1, Probability: 0.8})

	first := <-ch
	second := <-ch
	if first.Type != TypeRealtimeFeatures {
		t.Errorf("first.Type = %v, want %v", first.Type, TypeRealtimeFeatures)
	}
	if second.Type != TypeRealtimePrediction {
		t.Errorf("second.Type = %v, want %v", second.Type, TypeRealtimePrediction)
	}
}
