package instrument

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/gousb"
)

const (
	// Keithley Instruments USB identifiers.
	VendorIDKeithley = 0x05E6
	ProductID3706A   = 0x3706

	usbtmcClass    = gousb.Class(0xFE)
	usbtmcSubClass = gousb.Class(0x03)

	usbtmcReadChunk = 4096
)

// USBTMC talks to the mainframe over USB Test & Measurement Class bulk
// endpoints.
type USBTMC struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	packetSize int
	timeout    time.Duration
	tags       tagSeq
}

// OpenUSBTMC opens the first device matching vid/pid and claims its
// USBTMC interface.
func OpenUSBTMC(vid, pid uint16, timeout time.Duration) (*USBTMC, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("USB error: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("device not found (VID:0x%04X PID:0x%04X)", vid, pid)
	}

	// Linux binds usbtmc.ko to these devices; detaching is not fatal elsewhere.
	_ = dev.SetAutoDetach(true)

	t := &USBTMC{
		ctx:        ctx,
		dev:        dev,
		packetSize: 64,
		timeout:    timeout,
	}
	if err := t.claimInterface(); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

func (t *USBTMC) claimInterface() error {
	cfgNum, err := t.dev.ActiveConfigNum()
	if err != nil || cfgNum == 0 {
		cfgNum = 1
	}
	cfg, err := t.dev.Config(cfgNum)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	t.cfg = cfg

	intfNum := -1
	for _, intf := range cfg.Desc.Interfaces {
		if len(intf.AltSettings) == 0 {
			continue
		}
		alt := intf.AltSettings[0]
		if alt.Class == usbtmcClass && alt.SubClass == usbtmcSubClass {
			intfNum = intf.Number
			break
		}
	}
	if intfNum == -1 {
		return fmt.Errorf("no USBTMC interface on device")
	}

	intf, err := cfg.Interface(intfNum, 0)
	if err != nil {
		return fmt.Errorf("failed to claim interface %d: %w", intfNum, err)
	}
	t.intf = intf

	return t.findEndpoints()
}

func (t *USBTMC) findEndpoints() error {
	var outNum, inNum int
	for _, ep := range t.intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionOut:
			if outNum == 0 {
				outNum = ep.Number
			}
		case gousb.EndpointDirectionIn:
			if inNum == 0 {
				inNum = ep.Number
				t.packetSize = ep.MaxPacketSize
			}
		}
	}
	if outNum == 0 {
		return fmt.Errorf("bulk OUT endpoint not found")
	}
	if inNum == 0 {
		return fmt.Errorf("bulk IN endpoint not found")
	}

	epOut, err := t.intf.OutEndpoint(outNum)
	if err != nil {
		return fmt.Errorf("failed to open OUT endpoint: %w", err)
	}
	t.epOut = epOut

	epIn, err := t.intf.InEndpoint(inNum)
	if err != nil {
		return fmt.Errorf("failed to open IN endpoint: %w", err)
	}
	t.epIn = epIn
	return nil
}

// Write implements Transport.
func (t *USBTMC) Write(line string) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	pkt := encodeDevDepMsgOut(t.tags.next(), []byte(line+"\n"), true)
	if _, err := t.epOut.WriteContext(ctx, pkt); err != nil {
		return fmt.Errorf("USB write failed: %w", err)
	}
	return nil
}

// ReadLine implements Transport. It requests data until the device marks
// end of message.
func (t *USBTMC) ReadLine() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	var msg []byte
	for {
		tag := t.tags.next()
		if _, err := t.epOut.WriteContext(ctx, encodeRequestDevDepMsgIn(tag, usbtmcReadChunk)); err != nil {
			return "", fmt.Errorf("USB write failed: %w", err)
		}

		buf := make([]byte, t.readBufferSize())
		n, err := t.epIn.ReadContext(ctx, buf)
		if err != nil {
			return "", fmt.Errorf("USB read failed: %w", err)
		}
		data, eom, err := decodeDevDepMsgIn(tag, buf[:n])
		if err != nil {
			return "", err
		}
		msg = append(msg, data...)
		if eom {
			break
		}
	}
	return strings.TrimRight(string(msg), "\r\n"), nil
}

func (t *USBTMC) readBufferSize() int {
	size := usbtmcHeaderLen + usbtmcReadChunk
	if t.packetSize > 0 && size%t.packetSize != 0 {
		size += t.packetSize - size%t.packetSize
	}
	return size
}

// Close implements Transport.
func (t *USBTMC) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.cfg != nil {
		t.cfg.Close()
		t.cfg = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}
