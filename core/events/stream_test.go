package events

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestBrokerBacklogHonoursCursor(t *testing.T) {
	broker := NewBroker()
	for i := 0; i < 3; i++ {
		broker.Emit(Transfer{From: common.Address{1}, To: common.Address{2}, Amount: big.NewInt(int64(i))})
	}

	_, cancel, backlog, err := broker.Subscribe(context.Background(), "1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if len(backlog) != 2 {
		t.Fatalf("expected 2 backlog records, got %d", len(backlog))
	}
	if backlog[0].Sequence != 2 || backlog[0].Event.Attr("amount") != "1" {
		t.Fatalf("unexpected first backlog record %+v", backlog[0])
	}
}

func TestBrokerDeliversLiveRecords(t *testing.T) {
	broker := NewBroker()
	updates, cancel, _, err := broker.Subscribe(context.Background(), "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	broker.Emit(Transfer{From: common.Address{1}, To: common.Address{2}, Amount: big.NewInt(5)})
	rec := <-updates
	if rec.Event.Type != TypeTransfer || rec.Cursor != "1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	cancel()
	if _, ok := <-updates; ok {
		t.Fatalf("expected channel to close after cancel")
	}
}

func TestBrokerEmitSurvivesConcurrentCancel(t *testing.T) {
	broker := NewBroker()
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			_, cancel, _, err := broker.Subscribe(context.Background(), "")
			if err != nil {
				t.Errorf("subscribe: %v", err)
				return
			}
			cancel()
		}
	}()
	for i := 0; i < 200000; i++ {
		broker.Emit(Transfer{Amount: big.NewInt(int64(i))})
	}
	close(done)
	wg.Wait()
}

func TestBrokerRejectsMalformedCursor(t *testing.T) {
	if _, _, _, err := NewBroker().Subscribe(context.Background(), "abc"); err == nil {
		t.Fatalf("expected cursor error")
	}
}

func TestBufferFlushAndReset(t *testing.T) {
	var buf Buffer
	buf.Emit(Transfer{Amount: big.NewInt(1)})
	buf.Emit(Transfer{Amount: big.NewInt(2)})
	if buf.Len() != 2 {
		t.Fatalf("expected 2 buffered events")
	}

	var sink Buffer
	buf.Flush(Multi{&sink, NoopEmitter{}})
	if buf.Len() != 0 || sink.Len() != 2 {
		t.Fatalf("flush did not move events: buf=%d sink=%d", buf.Len(), sink.Len())
	}

	buf.Emit(Transfer{Amount: big.NewInt(3)})
	buf.Reset()
	buf.Flush(&sink)
	if sink.Len() != 2 {
		t.Fatalf("reset events must not be flushed")
	}
}
