package pairs

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

// Channels carries decoded pair batches from the decoder to the writers.
type Channels struct {
	Norm chan models.BatchPairsMessage

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(normBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Norm: make(chan models.BatchPairsMessage, normBufferSize),
		log:  log,
	}

	log.WithComponent("pairs_channels").WithFields(logger.Fields{
		"norm_buffer_size": normBufferSize,
	}).Info("pairs channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Norm)
	c.log.WithComponent("pairs_channels").Info("pairs channels closed")
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

// SendNorm delivers a batch without blocking. Batches are dropped, not
// queued, when the writers fall behind.
func (c *Channels) SendNorm(ctx context.Context, msg models.BatchPairsMessage) bool {
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
