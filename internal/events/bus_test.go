package events

import (
	"sync"
	"testing"
	"time"
)

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewEventBus()

	var wg sync.WaitGroup
	wg.Add(1)
	var mu sync.Mutex
	var received []Event

	bus.Subscribe(EventTradeClosed, func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		wg.Done()
	})

	bus.PublishTradeClosed("BTCUSDT", "STOP_LOSS", 100, 98, -2)
	// A different type must not reach the typed subscriber.
	bus.PublishLog("info", "noise")

	wg.Wait()
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("Received %d events, want 1", len(received))
	}
	if received[0].Type != EventTradeClosed {
		t.Errorf("Type = %s, want %s", received[0].Type, EventTradeClosed)
	}
	if received[0].Data["symbol"] != "BTCUSDT" {
		t.Errorf("Symbol = %v, want BTCUSDT", received[0].Data["symbol"])
	}
	if received[0].Timestamp.IsZero() {
		t.Error("Publish should stamp the event")
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewEventBus()

	var wg sync.WaitGroup
	wg.Add(3)
	var mu sync.Mutex
	count := 0

	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
		wg.Done()
	})

	bus.PublishSignal("ETHUSDT", "entry conditions met", 3000)
	bus.PublishTradeOpened("ETHUSDT", 3000, 0.5)
	bus.PublishError("scanner", "ticker fetch failed", nil)

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != 3 {
		t.Errorf("Received %d events, want 3", count)
	}
}
