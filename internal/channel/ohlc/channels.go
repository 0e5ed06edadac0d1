package ohlc

import (
	"context"
	"sync"

	"dexflow/logger"
	"dexflow/models"
)

type ChannelStats struct {
	NormSent    int64
	NormDropped int64
}

// Channels carries decoded candle batches from the decoder to the writers.
type Channels struct {
	Norm chan models.BatchOHLCMessage

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(normBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Norm: make(chan models.BatchOHLCMessage, normBufferSize),
		log:  log,
	}

	log.WithComponent("ohlc_channels").WithFields(logger.Fields{
		"norm_buffer_size": normBufferSize,
	}).Info("ohlc channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Norm)
	c.log.WithComponent("ohlc_channels").Info("ohlc channels closed")
}

func (c *Channels) IncrementNormSent() {
	c.statsMutex.Lock()
	c.stats.NormSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementNormDropped() {
	c.statsMutex.Lock()
	c.stats.NormDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) SendNorm(ctx context.Context, msg models.BatchOHLCMessage) bool {
	select {
	case c.Norm <- msg:
		c.IncrementNormSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementNormDropped()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
