package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
)

// NewAE USB identifiers for the supported scopes.
const (
	VendorIDNewAE    = 0x2B3E
	ProductIDCWLite  = 0xACE2
	ProductIDCW1200  = 0xACE3
	ProductIDCWHusky = 0xACE5
)

var knownProducts = map[gousb.ID]string{
	ProductIDCWLite:  "ChipWhisperer-Lite",
	ProductIDCW1200:  "ChipWhisperer-Pro",
	ProductIDCWHusky: "ChipWhisperer-Husky",
}

// DeviceInfo represents a discovered USB instrument.
type DeviceInfo struct {
	VID          uint16 `json:"vid"`
	PID          uint16 `json:"pid"`
	SerialNumber string `json:"serial_number"`
	Description  string `json:"description"`
}

// USBChannel moves bytes over the instrument's vendor-class bulk endpoints.
type USBChannel struct {
	mu   sync.Mutex
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	packetSize int
	info       DeviceInfo
}

// ListInstruments enumerates attached scopes by vendor and product id.
func ListInstruments() ([]DeviceInfo, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		_, ok := knownProducts[desc.Product]
		return desc.Vendor == VendorIDNewAE && ok
	})
	// OpenDevices can return partial results alongside an error.
	defer func() {
		for _, d := range devs {
			d.Close()
		}
	}()
	if err != nil && len(devs) == 0 {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	infos := make([]DeviceInfo, 0, len(devs))
	for _, dev := range devs {
		infos = append(infos, describe(dev))
	}
	return infos, nil
}

func describe(dev *gousb.Device) DeviceInfo {
	serial, _ := dev.SerialNumber()
	return DeviceInfo{
		VID:          uint16(dev.Desc.Vendor),
		PID:          uint16(dev.Desc.Product),
		SerialNumber: serial,
		Description:  knownProducts[dev.Desc.Product],
	}
}

// ErrNoDevice is returned by OpenUSB when nothing matches.
var ErrNoDevice = errors.New("transport: no matching USB device")

// OpenUSB opens the first scope whose serial number matches serial (any
// scope when serial is empty).
func OpenUSB(serial string) (*USBChannel, error) {
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		_, ok := knownProducts[desc.Product]
		return desc.Vendor == VendorIDNewAE && ok
	})
	if err != nil && len(devs) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("USB error: %w", err)
	}

	var dev *gousb.Device
	for _, d := range devs {
		if dev == nil {
			if sn, _ := d.SerialNumber(); serial == "" || sn == serial {
				dev = d
				continue
			}
		}
		d.Close()
	}
	if dev == nil {
		ctx.Close()
		return nil, ErrNoDevice
	}

	// Not supported on every platform.
	_ = dev.SetAutoDetach(true)

	c := &USBChannel{ctx: ctx, dev: dev, packetSize: 64, info: describe(dev)}
	if err := c.claim(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Info returns the identity of the opened device.
func (c *USBChannel) Info() DeviceInfo { return c.info }

func (c *USBChannel) claim() error {
	cfg, err := c.dev.Config(1)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	c.cfg = cfg

	intfNum := 0
	for _, intf := range cfg.Desc.Interfaces {
		if len(intf.AltSettings) > 0 && intf.AltSettings[0].Class == gousb.ClassVendorSpec {
			intfNum = intf.Number
			break
		}
	}

	intf, err := cfg.Interface(intfNum, 0)
	if err != nil {
		return fmt.Errorf("failed to claim interface %d: %w", intfNum, err)
	}
	c.intf = intf

	var outAddr, inAddr int
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionOut && outAddr == 0 {
			outAddr = ep.Number
		}
		if ep.Direction == gousb.EndpointDirectionIn && inAddr == 0 {
			inAddr = ep.Number
			c.packetSize = ep.MaxPacketSize
		}
	}
	if outAddr == 0 || inAddr == 0 {
		return fmt.Errorf("bulk endpoints not found on interface %d", intfNum)
	}

	if c.epOut, err = intf.OutEndpoint(outAddr); err != nil {
		return fmt.Errorf("failed to open OUT endpoint: %w", err)
	}
	if c.epIn, err = intf.InEndpoint(inAddr); err != nil {
		return fmt.Errorf("failed to open IN endpoint: %w", err)
	}
	return nil
}

// Write sends p on the bulk OUT endpoint.
func (c *USBChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epOut == nil {
		return 0, ErrClosed
	}
	n, err := c.epOut.Write(p)
	if err != nil {
		return n, fmt.Errorf("USB write failed: %w", err)
	}
	return n, nil
}

// ReadN reads bulk IN packets until n bytes arrive or timeout elapses.
func (c *USBChannel) ReadN(n int, timeout time.Duration) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epIn == nil {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out := make([]byte, 0, n)
	pkt := make([]byte, c.packetSize)
	for len(out) < n {
		m, err := c.epIn.ReadContext(ctx, pkt)
		if m > 0 {
			take := m
			if len(out)+take > n {
				take = n - len(out)
			}
			out = append(out, pkt[:take]...)
		}
		if err != nil {
			if ctx.Err() != nil {
				return out, nil
			}
			return out, fmt.Errorf("USB read failed: %w", err)
		}
	}
	return out, nil
}

// Drain reads and discards whatever the device has queued.
func (c *USBChannel) Drain() error {
	for {
		b, err := c.ReadN(c.packetSize, 5*time.Millisecond)
		if err != nil {
			return err
		}
		if len(b) == 0 {
			return nil
		}
	}
}

// Close releases USB resources.
func (c *USBChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epIn, c.epOut = nil, nil
	if c.intf != nil {
		c.intf.Close()
		c.intf = nil
	}
	if c.cfg != nil {
		c.cfg.Close()
		c.cfg = nil
	}
	if c.dev != nil {
		c.dev.Close()
		c.dev = nil
	}
	if c.ctx != nil {
		c.ctx.Close()
		c.ctx = nil
	}
	return nil
}
