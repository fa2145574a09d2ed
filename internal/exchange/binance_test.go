package exchange

import (
	"errors"
	"testing"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/your-org/trail-guard-bot/pkg/ratchet"
)

func TestRoundToTick(t *testing.T) {
	c := NewBinanceClient("", "", true, map[string]float64{
		"BTCUSDT":  0.1,
		"DOGEUSDT": 0.00001,
	})

	assert.Equal(t, "100531.2", c.roundToTick("BTCUSDT", 100531.2000000001))
	assert.Equal(t, "97000.0", c.roundToTick("BTCUSDT", 96999.97))
	assert.Equal(t, "0.12345", c.roundToTick("DOGEUSDT", 0.123451))
	// Unknown symbol falls back to the default tick.
	assert.Equal(t, "3000.1", c.roundToTick("ETHUSDT", 3000.12))
}

func TestStopSide(t *testing.T) {
	assert.Equal(t, futures.SideTypeSell, stopSide(ratchet.Long))
	assert.Equal(t, futures.SideTypeBuy, stopSide(ratchet.Short))
}

func TestIsUnknownOrder(t *testing.T) {
	assert.True(t, isUnknownOrder(errors.New("<APIError> code=-2011, msg=Unknown order sent.")))
	assert.False(t, isUnknownOrder(errors.New("connection reset")))
	assert.False(t, isUnknownOrder(nil))
}
