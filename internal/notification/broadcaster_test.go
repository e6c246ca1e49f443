package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/npp_sim/internal/logging"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func expectClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Fatalf("expected closed subscription, got event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("subscription was not closed")
	}
}

func TestSubscribeDeliversSnapshotFirst(t *testing.T) {
	b := NewBroadcaster(logging.Discard())
	sub := b.Subscribe(Event{PaymentID: "p1", State: "CLEARING", Message: "Current status: CLEARING"})
	defer sub.Close()

	b.Notify(context.Background(), Event{PaymentID: "p1", State: "SETTLED"})

	if ev := receive(t, sub); ev.State != "CLEARING" {
		t.Fatalf("expected snapshot first, got %s", ev.State)
	}
	if ev := receive(t, sub); ev.State != "SETTLED" {
		t.Fatalf("expected SETTLED, got %s", ev.State)
	}
}

func TestSubscribeToFinalSnapshotClosesImmediately(t *testing.T) {
	b := NewBroadcaster(logging.Discard())
	sub := b.Subscribe(Event{PaymentID: "p1", State: "REJECTED", Final: true})

	if ev := receive(t, sub); ev.State != "REJECTED" {
		t.Fatalf("expected terminal snapshot, got %s", ev.State)
	}
	expectClosed(t, sub)
	if n := b.Subscribers("p1"); n != 0 {
		t.Fatalf("terminal subscription must not be registered, got %d", n)
	}
	sub.Close()
}

func TestNotifyFinalEventClosesSubscription(t *testing.T) {
	b := NewBroadcaster(logging.Discard())
	sub := b.Subscribe(Event{PaymentID: "p1", State: "SETTLED"})
	receive(t, sub)

	b.Notify(context.Background(), Event{PaymentID: "p1", State: "CONFIRMED", Final: true})

	if ev := receive(t, sub); ev.State != "CONFIRMED" {
		t.Fatalf("expected CONFIRMED, got %s", ev.State)
	}
	expectClosed(t, sub)
	if n := b.Subscribers("p1"); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}

func TestNotifyOnlyReachesMatchingPayment(t *testing.T) {
	b := NewBroadcaster(logging.Discard())
	a := b.Subscribe(Event{PaymentID: "a", State: "INITIATED"})
	defer a.Close()
	other := b.Subscribe(Event{PaymentID: "b", State: "INITIATED"})
	defer other.Close()
	receive(t, a)
	receive(t, other)

	b.Notify(context.Background(), Event{PaymentID: "a", State: "CLEARING"})

	receive(t, a)
	select {
	case ev := <-other.Events():
		t.Fatalf("unexpected event for other payment: %+v", ev)
	default:
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	b := NewBroadcaster(logging.Discard(), WithBuffer(1))
	slow := b.Subscribe(Event{PaymentID: "p1", State: "INITIATED"})
	fast := b.Subscribe(Event{PaymentID: "p1", State: "INITIATED"})
	defer fast.Close()
	receive(t, fast)

	b.Notify(context.Background(), Event{PaymentID: "p1", State: "CLEARING"})

	if n := b.Subscribers("p1"); n != 1 {
		t.Fatalf("expected slow subscriber to be dropped, have %d", n)
	}
	if ev := receive(t, fast); ev.State != "CLEARING" {
		t.Fatalf("fast subscriber missed event, got %s", ev.State)
	}
	receive(t, slow)
	expectClosed(t, slow)
}

func TestCloseUnregisters(t *testing.T) {
	b := NewBroadcaster(logging.Discard())
	sub := b.Subscribe(Event{PaymentID: "p1", State: "INITIATED"})
	receive(t, sub)

	sub.Close()
	sub.Close()

	expectClosed(t, sub)
	if n := b.Subscribers("p1"); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
	b.Notify(context.Background(), Event{PaymentID: "p1", State: "CLEARING"})
}

func TestIdleSubscriptionTimesOut(t *testing.T) {
	b := NewBroadcaster(logging.Discard(), WithIdleTimeout(30*time.Millisecond))
	sub := b.Subscribe(Event{PaymentID: "p1", State: "INITIATED"})
	receive(t, sub)

	expectClosed(t, sub)
	if n := b.Subscribers("p1"); n != 0 {
		t.Fatalf("expected idle subscription removed, got %d", n)
	}
}

func TestConcurrentSubscribeAndNotify(t *testing.T) {
	b := NewBroadcaster(logging.Discard())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := b.Subscribe(Event{PaymentID: "p1", State: "INITIATED"})
			sub.Close()
		}()
		go func() {
			defer wg.Done()
			b.Notify(context.Background(), Event{PaymentID: "p1", State: "CLEARING"})
		}()
	}
	wg.Wait()
	if n := b.Subscribers("p1"); n != 0 {
		t.Fatalf("expected registry to drain, got %d", n)
	}
}

type recordingRelay struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingRelay) Name() string { return "recording" }

func (r *recordingRelay) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func TestRelayFailuresDoNotAffectDelivery(t *testing.T) {
	failing := &recordingRelay{err: errors.New("broker down")}
	ok := &recordingRelay{}
	b := NewBroadcaster(logging.Discard(), WithRelays(failing, ok))
	sub := b.Subscribe(Event{PaymentID: "p1", State: "INITIATED"})
	defer sub.Close()
	receive(t, sub)

	b.Notify(context.Background(), Event{PaymentID: "p1", State: "CLEARING"})

	receive(t, sub)
	if len(failing.events) != 1 || len(ok.events) != 1 {
		t.Fatalf("expected both relays to be called once, got %d and %d", len(failing.events), len(ok.events))
	}
	if ok.events[0].At.IsZero() {
		t.Fatal("expected event timestamp to be filled in")
	}
}

func TestRedisRelayPublishesJSON(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	ps := client.Subscribe(ctx, DefaultChannel)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	relay := NewRedisRelay(client, "")
	if err := relay.Publish(ctx, Event{PaymentID: "p1", State: "SETTLED", Message: "Funds settled"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-ps.Channel():
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if ev.PaymentID != "p1" || ev.State != "SETTLED" {
			t.Fatalf("unexpected payload %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}

type fakePublisher struct {
	subject string
	data    []byte
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.subject = subject
	p.data = data
	return nil
}

func TestNATSRelayPublishesOnSubject(t *testing.T) {
	pub := &fakePublisher{}
	relay := NewNATSRelay(pub, "npp.test")
	if err := relay.Publish(context.Background(), Event{PaymentID: "p1", State: "RETURNED", Final: true}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if pub.subject != "npp.test" {
		t.Fatalf("unexpected subject %q", pub.subject)
	}
	var ev Event
	if err := json.Unmarshal(pub.data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ev.Final || ev.State != "RETURNED" {
		t.Fatalf("unexpected event %+v", ev)
	}
}
