package channel

import (
	"context"
	"sync"
	"time"

	"dexflow/internal/channel/ohlc"
	"dexflow/internal/channel/pairs"
	"dexflow/internal/channel/profiles"
	"dexflow/logger"
	"dexflow/models"
)

type RawStats struct {
	RawSent    int64
	RawDropped int64
}

// Channels wires the pipeline together: one shared raw frame channel feeding
// the decoder, and typed batch channels feeding the writers. A frame's type
// is only known after decoding, so raw frames are not split per type.
type Channels struct {
	Raw chan models.RawFrameMessage

	Pairs    *pairs.Channels
	OHLC     *ohlc.Channels
	Profiles *profiles.Channels

	stats      RawStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, normBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:      make(chan models.RawFrameMessage, rawBufferSize),
		Pairs:    pairs.NewChannels(normBufferSize),
		OHLC:     ohlc.NewChannels(normBufferSize),
		Profiles: profiles.NewChannels(normBufferSize),
		log:      log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"raw_buffer_size":  rawBufferSize,
		"norm_buffer_size": normBufferSize,
	}).Info("channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Raw)
	c.Pairs.Close()
	c.OHLC.Close()
	c.Profiles.Close()
	c.log.WithComponent("channels").Info("channels closed")
}

// SendRaw delivers a frame without blocking. Frames are dropped when the
// decoder falls behind; the feed re-sends full snapshots so a lost frame
// only delays data.
func (c *Channels) SendRaw(ctx context.Context, msg models.RawFrameMessage) bool {
	select {
	case c.Raw <- msg:
		c.statsMutex.Lock()
		c.stats.RawSent++
		c.statsMutex.Unlock()
		logger.RecordChannelMessage("raw_frames", len(msg.Data))
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.RawDropped++
		c.statsMutex.Unlock()
		return false
	}
}

func (c *Channels) GetRawStats() RawStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

// StartMetricsReporting periodically logs channel occupancy so backpressure
// shows up before drops do. It returns immediately.
func (c *Channels) StartMetricsReporting(ctx context.Context) {
	go c.reportLoop(ctx)
}

func (c *Channels) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	log := c.log.WithComponent("channels")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			raw := c.GetRawStats()
			pairStats := c.Pairs.GetStats()
			ohlcStats := c.OHLC.GetStats()
			profileStats := c.Profiles.GetStats()
			log.WithFields(logger.Fields{
				"raw_len":          len(c.Raw),
				"raw_cap":          cap(c.Raw),
				"raw_sent":         raw.RawSent,
				"raw_dropped":      raw.RawDropped,
				"pairs_len":        len(c.Pairs.Norm),
				"pairs_cap":        cap(c.Pairs.Norm),
				"pairs_sent":       pairStats.NormSent,
				"pairs_dropped":    pairStats.NormDropped,
				"ohlc_len":         len(c.OHLC.Norm),
				"ohlc_sent":        ohlcStats.NormSent,
				"ohlc_dropped":     ohlcStats.NormDropped,
				"profiles_len":     len(c.Profiles.Norm),
				"profiles_sent":    profileStats.NormSent,
				"profiles_dropped": profileStats.NormDropped,
			}).Info("channel metrics")
		}
	}
}
