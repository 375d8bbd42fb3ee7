package transport

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// DefaultSPISpeed is safe before the device PLL locks.
const DefaultSPISpeed = 2 * physic.MegaHertz

// SPIPort is an open spidev port connected in the transceiver's bus mode.
type SPIPort struct {
	conn   spi.Conn
	port   spi.PortCloser
	device string
	speed  physic.Frequency
}

// OpenSPI opens device (e.g. "/dev/spidev0.0" or "SPI0.0") at speed Hz.
// A zero speed selects DefaultSPISpeed.
func OpenSPI(device string, speed uint32) (*SPIPort, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io: %w", err)
	}

	port, err := spireg.Open(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI device %s: %w", device, err)
	}

	freq := DefaultSPISpeed
	if speed != 0 {
		freq = physic.Frequency(speed) * physic.Hertz
	}

	// Mode 0 (CPOL=0, CPHA=0), MSB first, 8-bit words.
	c, err := port.Connect(freq, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to connect to SPI device: %w", err)
	}

	return &SPIPort{
		conn:   c,
		port:   port,
		device: device,
		speed:  freq,
	}, nil
}

// Conn returns the connection to hand to NewBus.
func (s *SPIPort) Conn() conn.Conn { return s.conn }

// Close closes the SPI port
func (s *SPIPort) Close() error {
	if s.port != nil {
		err := s.port.Close()
		s.port = nil
		s.conn = nil
		return err
	}
	return nil
}

// String describes the port.
func (s *SPIPort) String() string {
	if s.conn == nil {
		return fmt.Sprintf("Device: %s (closed)", s.device)
	}
	return fmt.Sprintf("Device: %s, Speed: %s", s.device, s.speed)
}

// ErrNoSPIDevice is returned when no spidev node is configured.
var ErrNoSPIDevice = errors.New("no SPI device configured")

// ValidateSPIDevice opens device, connects it in the transceiver's bus mode
// at speed Hz and releases it again.
func ValidateSPIDevice(device string, speed uint32) error {
	if device == "" {
		return ErrNoSPIDevice
	}
	p, err := OpenSPI(device, speed)
	if err != nil {
		return fmt.Errorf("SPI device %s unusable: %w", device, err)
	}
	return p.Close()
}
