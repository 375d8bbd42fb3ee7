package transport_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linht/uwb-manager/transport"
)

func TestValidateSPIDevice(t *testing.T) {
	assert.ErrorIs(t, transport.ValidateSPIDevice("", 0), transport.ErrNoSPIDevice)
	assert.Error(t, transport.ValidateSPIDevice("/dev/spidev-does-not-exist", 8000000))
}
