package processor

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	appconfig "dexflow/config"
	"dexflow/internal/channel"
	"dexflow/models"
)

func testDecoderConfig() *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Processor.MaxWorkers = 1
	cfg.Processor.BatchSize = 2
	cfg.Processor.BatchTimeout = 50 * time.Millisecond
	cfg.Source.Targets = []appconfig.TargetConfig{{
		Name:      "trending",
		Chain:     "solana",
		Timeframe: "h6",
		RankBy:    "trendingScoreH6",
		Order:     "desc",
	}}
	return cfg
}

func pairChunk(pairAddr string, metrics [8]float64) []byte {
	return pairChunkOn("solana", pairAddr, metrics)
}

func pairChunkOn(chain, pairAddr string, metrics [8]float64) []byte {
	chunk := make([]byte, 512)
	off := 0
	for _, s := range []string{chain, "raydium", pairAddr, "Token", "TOK", "Mint1111111111111111111111111111"} {
		chunk[off] = byte(len(s))
		off++
		copy(chunk[off:], s)
		off += len(s)
	}
	off = (off + 7) &^ 7
	for _, v := range metrics {
		binary.LittleEndian.PutUint64(chunk[off:], math.Float64bits(v))
		off += 8
	}
	return chunk
}

func pairsFrame(chunks ...[]byte) []byte {
	frame := []byte{0x00, '\n'}
	frame = append(frame, "1.3.0"...)
	frame = append(frame, '\n')
	frame = append(frame, "pairs"...)
	frame = append(frame, 0, 0, 0, 0)
	for _, c := range chunks {
		frame = append(frame, c...)
	}
	return frame
}

func rawFrame(source string, data []byte) models.RawFrameMessage {
	return models.RawFrameMessage{
		Source:     source,
		URL:        "wss://io.dexscreener.com/dex/screener/v5/pairs/h6/1",
		Data:       data,
		ReceivedAt: time.Now().UTC(),
	}
}

func TestDecoderBatchesPairs(t *testing.T) {
	cfg := testDecoderConfig()
	ch := channel.NewChannels(8, 8)

	d := NewDecoder(cfg, ch)
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	metrics := [8]float64{1.5, 1.5, 2.0, 100000, 500000, 1200000, 0, 0}
	frame := pairsFrame(pairChunk("Pair1111", metrics), pairChunk("Pair2222", metrics))
	ch.Raw <- rawFrame("trending", frame)

	select {
	case batch := <-ch.Pairs.Norm:
		if batch.RecordCount != 2 {
			t.Errorf("record count: got %d, want 2", batch.RecordCount)
		}
		if batch.Chain != "solana" {
			t.Errorf("chain: got %q, want solana", batch.Chain)
		}
		if batch.Timeframe != "h6" {
			t.Errorf("timeframe: got %q, want h6", batch.Timeframe)
		}
		if batch.BatchID == "" {
			t.Error("batch id is empty")
		}
		if got := batch.Entries[0].PairAddress; got != "Pair1111" {
			t.Errorf("first entry pair address: got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no batch flushed")
	}

	cancel()
	d.Stop()
}

func TestDecoderFlushesOnTimeout(t *testing.T) {
	cfg := testDecoderConfig()
	cfg.Processor.BatchSize = 100
	ch := channel.NewChannels(8, 8)

	d := NewDecoder(cfg, ch)
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	metrics := [8]float64{1.5, 1.5, 2.0, 100000, 500000, 1200000, 0, 0}
	ch.Raw <- rawFrame("trending", pairsFrame(pairChunk("Pair1111", metrics)))

	select {
	case batch := <-ch.Pairs.Norm:
		if batch.RecordCount != 1 {
			t.Errorf("record count: got %d, want 1", batch.RecordCount)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed-out batch never flushed")
	}

	cancel()
	d.Stop()
}

func TestDecoderAppliesTargetFilters(t *testing.T) {
	cfg := testDecoderConfig()
	cfg.Source.Targets[0].Filters.LiquidityMin = 1000
	ch := channel.NewChannels(8, 8)

	d := NewDecoder(cfg, ch)
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	thin := [8]float64{1.5, 1.5, 2.0, 500, 500000, 1200000, 0, 0}
	deep := [8]float64{1.5, 1.5, 2.0, 5000, 500000, 1200000, 0, 0}
	frame := pairsFrame(pairChunk("PairThin", thin), pairChunk("PairDeep", deep))
	ch.Raw <- rawFrame("trending", frame)

	select {
	case batch := <-ch.Pairs.Norm:
		if batch.RecordCount != 1 {
			t.Fatalf("record count: got %d, want 1", batch.RecordCount)
		}
		if got := batch.Entries[0].PairAddress; got != "PairDeep" {
			t.Errorf("surviving entry: got %q, want PairDeep", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no batch flushed")
	}

	cancel()
	d.Stop()
}

func TestDecoderDropsWrongChainRecords(t *testing.T) {
	cfg := testDecoderConfig()
	ch := channel.NewChannels(8, 8)

	d := NewDecoder(cfg, ch)
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	metrics := [8]float64{1.5, 1.5, 2.0, 100000, 500000, 1200000, 0, 0}
	frame := pairsFrame(
		pairChunkOn("ethereum", "PairEth1", metrics),
		pairChunk("PairSol1", metrics),
		pairChunk("PairSol2", metrics),
	)
	ch.Raw <- rawFrame("trending", frame)

	select {
	case batch := <-ch.Pairs.Norm:
		if batch.RecordCount != 2 {
			t.Fatalf("record count: got %d, want 2", batch.RecordCount)
		}
		for _, entry := range batch.Entries {
			if entry.Chain != "solana" {
				t.Errorf("entry %q escaped chain filter with chain %q", entry.PairAddress, entry.Chain)
			}
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no batch flushed")
	}

	cancel()
	d.Stop()
}

func TestDecoderCountsFramesAcrossWorkers(t *testing.T) {
	cfg := testDecoderConfig()
	cfg.Processor.MaxWorkers = 4
	cfg.Processor.BatchSize = 1000
	ch := channel.NewChannels(32, 8)

	d := NewDecoder(cfg, ch)
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	const frames = 16
	metrics := [8]float64{1.5, 1.5, 2.0, 100000, 500000, 1200000, 0, 0}
	for i := 0; i < frames; i++ {
		ch.Raw <- rawFrame("trending", pairsFrame(pairChunk("Pair1111", metrics)))
	}

	deadline := time.Now().Add(3 * time.Second)
	for d.framesProcessed.Load() < frames {
		if time.Now().After(deadline) {
			t.Fatalf("frames processed: got %d, want %d", d.framesProcessed.Load(), frames)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := d.recordsDecoded.Load(); got != frames {
		t.Errorf("records decoded: got %d, want %d", got, frames)
	}

	cancel()
	d.Stop()
}

func TestDecoderIgnoresGarbageFrames(t *testing.T) {
	cfg := testDecoderConfig()
	ch := channel.NewChannels(8, 8)

	d := NewDecoder(cfg, ch)
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	ch.Raw <- rawFrame("trending", []byte("not a screener frame"))

	select {
	case batch := <-ch.Pairs.Norm:
		t.Fatalf("unexpected batch from garbage frame: %+v", batch)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	d.Stop()
}

func TestDecoderDoubleStartRejected(t *testing.T) {
	cfg := testDecoderConfig()
	ch := channel.NewChannels(1, 1)

	d := NewDecoder(cfg, ch)
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Error("second start should fail")
	}

	cancel()
	d.Stop()
}
