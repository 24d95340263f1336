package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveOperation("deposit", "ok", 5*time.Millisecond)
	c.ObserveOperation("deposit", "ok", time.Millisecond)
	c.ObserveOperation("place_bet", "insufficient_balance", time.Millisecond)
	c.BetResolved(true)
	c.BetResolved(false)
	c.BetResolved(false)
	c.Published("kafka", nil)
	c.Published("kafka", errors.New("down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.operations.WithLabelValues("deposit", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues("place_bet", "insufficient_balance")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.betOutcomes.WithLabelValues("win")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.betOutcomes.WithLabelValues("lose")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.published.WithLabelValues("kafka", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.duration))
}

func TestNilCollectorsAreNoop(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.ObserveOperation("deposit", "ok", time.Second)
		c.BetResolved(true)
		c.Published("redis", nil)
	})
}

func TestAuditCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewAudit(reg)

	c.Record("ok")
	c.Record("ok")
	c.Record("broken")
	c.Error("decode")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.records.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.records.WithLabelValues("broken")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errors.WithLabelValues("decode")))

	var nilc *AuditCollectors
	assert.NotPanics(t, func() { nilc.Record("ok"); nilc.Error("read") })
}
