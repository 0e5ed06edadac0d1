package channel

import (
	"context"
	"testing"
	"time"

	"dexflow/models"
)

func TestNewChannels(t *testing.T) {
	c := NewChannels(1, 1)
	if c.Pairs == nil || c.OHLC == nil || c.Profiles == nil {
		t.Fatalf("expected non-nil sub channels")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.StartMetricsReporting(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()
	c.Close()
}

func TestSendRawDropsWhenFull(t *testing.T) {
	c := NewChannels(1, 1)
	ctx := context.Background()

	msg := models.RawFrameMessage{Data: []byte{0x00}, ReceivedAt: time.Now()}
	if !c.SendRaw(ctx, msg) {
		t.Fatal("first send should succeed")
	}
	if c.SendRaw(ctx, msg) {
		t.Fatal("second send should drop, buffer is full")
	}

	stats := c.GetRawStats()
	if stats.RawSent != 1 || stats.RawDropped != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSendNormDropsWhenFull(t *testing.T) {
	c := NewChannels(1, 1)
	ctx := context.Background()

	batch := models.BatchPairsMessage{BatchID: "b1", RecordCount: 1}
	if !c.Pairs.SendNorm(ctx, batch) {
		t.Fatal("first send should succeed")
	}
	if c.Pairs.SendNorm(ctx, batch) {
		t.Fatal("second send should drop, buffer is full")
	}
	stats := c.Pairs.GetStats()
	if stats.NormSent != 1 || stats.NormDropped != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
