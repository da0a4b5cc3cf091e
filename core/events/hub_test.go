package events

import (
	"testing"

	"safi/model"
)

func TestHubDeliversToAllSubscribers(t *testing.T) {
	hub := NewHub(4)
	a, unsubA := hub.Subscribe()
	b, unsubB := hub.Subscribe()
	defer unsubA()
	defer unsubB()

	hub.Publish(model.TrackEvent{Type: model.TrackCreated, Track: &model.Track{ID: 7}})

	for _, ch := range []<-chan model.TrackEvent{a, b} {
		ev := <-ch
		if ev.Type != model.TrackCreated || ev.Track.ID != 7 {
			t.Fatalf("unexpected event %+v", ev)
		}
	}
}

func TestHubDropsForFullSubscriber(t *testing.T) {
	hub := NewHub(1)
	ch, unsub := hub.Subscribe()
	defer unsub()

	hub.Publish(model.TrackEvent{Type: model.TrackCreated, Track: &model.Track{ID: 1}})
	hub.Publish(model.TrackEvent{Type: model.TrackUpdated, Track: &model.Track{ID: 1}})

	if ev := <-ch; ev.Type != model.TrackCreated {
		t.Fatalf("expected first event to be kept, got %s", ev.Type)
	}
	select {
	case ev := <-ch:
		t.Fatalf("expected overflow event to be dropped, got %+v", ev)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(1)
	ch, unsub := hub.Subscribe()
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", hub.Subscribers())
	}
	hub.Publish(model.TrackEvent{Type: model.TrackDeleted})
}
