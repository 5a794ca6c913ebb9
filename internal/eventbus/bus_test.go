package eventbus

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *Bus {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func collect(t *testing.T, sub *Subscription, n int) []Notification {
	t.Helper()
	out := make([]Notification, 0, n)
	for i := 0; i < n; i++ {
		select {
		case got, ok := <-sub.C():
			require.True(t, ok, "channel closed early")
			out = append(out, got)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for notification %d", i)
		}
	}
	return out
}

func TestPublishDeliversOnlyToMatchingTeam(t *testing.T) {
	bus := newTestBus()
	team1 := bus.Subscribe("team-1")
	defer team1.Close()
	team2 := bus.Subscribe("team-2")
	defer team2.Close()

	bus.Publish(Notification{ID: "n1", Message: "x", TeamID: "team-1"})

	got := collect(t, team1, 1)
	assert.Equal(t, "n1", got[0].ID)
	assert.Equal(t, "x", got[0].Message)

	select {
	case n := <-team2.C():
		t.Fatalf("team-2 subscriber received foreign notification %q", n.ID)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPublishPreservesOrderPerTeam(t *testing.T) {
	bus := newTestBus()
	sub := bus.Subscribe("team-1")
	defer sub.Close()

	for i := 0; i < 10; i++ {
		bus.Publish(Notification{ID: fmt.Sprintf("n%d", i), TeamID: "team-1"})
	}

	got := collect(t, sub, 10)
	for i, n := range got {
		assert.Equal(t, fmt.Sprintf("n%d", i), n.ID)
	}
}

func TestPublishFansOutToAllMatchingSubscriptions(t *testing.T) {
	bus := newTestBus()
	a := bus.Subscribe("team-1")
	defer a.Close()
	b := bus.Subscribe("team-1")
	defer b.Close()

	bus.Publish(Notification{ID: "n1", TeamID: "team-1"})

	assert.Equal(t, "n1", collect(t, a, 1)[0].ID)
	assert.Equal(t, "n1", collect(t, b, 1)[0].ID)
}

func TestPublishWithoutSubscribersIsDropped(t *testing.T) {
	bus := newTestBus()
	bus.Publish(Notification{ID: "lost", TeamID: "team-1"})

	// A later subscriber must not see replayed events.
	sub := bus.Subscribe("team-1")
	defer sub.Close()

	select {
	case n := <-sub.C():
		t.Fatalf("unexpected replay of %q", n.ID)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCloseRemovesSubscriptionAndClosesChannel(t *testing.T) {
	bus := newTestBus()
	sub := bus.Subscribe("team-1")
	require.Equal(t, 1, bus.Len())

	sub.Close()
	assert.Equal(t, 0, bus.Len())

	_, ok := <-sub.C()
	assert.False(t, ok, "channel must be closed")

	// Publishing after close must not panic.
	bus.Publish(Notification{ID: "n1", TeamID: "team-1"})

	// Close is idempotent.
	sub.Close()
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := newTestBus()
	sub := bus.Subscribe("team-1")
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Nobody reads sub; publishing past the buffer must not block.
		for i := 0; i < subscriptionBuffer*2; i++ {
			bus.Publish(Notification{ID: fmt.Sprintf("n%d", i), TeamID: "team-1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestConcurrentSubscribeUnsubscribeDuringPublish(t *testing.T) {
	bus := newTestBus()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sub := bus.Subscribe("team-1")
				bus.Publish(Notification{ID: "n", TeamID: "team-1"})
				sub.Close()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 0, bus.Len())
}
