package instrument

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// InterfaceKind categorizes instrument transports.
type InterfaceKind string

const (
	InterfaceKindUSBTMC InterfaceKind = "usbtmc"
	InterfaceKindTCP    InterfaceKind = "tcp"
	InterfaceKindSim    InterfaceKind = "sim"
)

// InterfaceInfo describes a detected instrument connection.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
}

// Label returns a user-friendly description for the interface.
func (i InterfaceInfo) Label() string {
	if i.Description != "" {
		return i.Description
	}
	return fmt.Sprintf("%s (%04X:%04X)", string(i.Kind), i.VendorID, i.ProductID)
}

// DiscoverInterfaces lists USB instruments exposing a USBTMC interface. The
// simulator entry is always appended so a run can be rehearsed without a
// mainframe attached.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	var results []InterfaceInfo
	usb := gousb.NewContext()
	defer usb.Close()

	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if info, ok := classifyUSBDevice(desc); ok {
			results = append(results, info)
		}
		return false
	})
	if err != nil && err != gousb.ErrorAccess {
		return results, err
	}

	results = append(results, InterfaceInfo{
		Kind:        InterfaceKindSim,
		Description: "Simulated feedthrough bench (no hardware)",
	})
	return results, nil
}

func classifyUSBDevice(desc *gousb.DeviceDesc) (InterfaceInfo, bool) {
	vid, pid := uint16(desc.Vendor), uint16(desc.Product)
	for _, known := range knownInstruments {
		if vid == known.VendorID && pid == known.ProductID {
			return InterfaceInfo{
				Kind:        InterfaceKindUSBTMC,
				Description: known.Description,
				VendorID:    vid,
				ProductID:   pid,
			}, true
		}
	}
	if hasUSBTMCInterface(desc) {
		return InterfaceInfo{
			Kind:        InterfaceKindUSBTMC,
			Description: fmt.Sprintf("USBTMC instrument (%04X:%04X)", vid, pid),
			VendorID:    vid,
			ProductID:   pid,
		}, true
	}
	return InterfaceInfo{}, false
}

func hasUSBTMCInterface(desc *gousb.DeviceDesc) bool {
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if alt.Class == usbtmcClass && alt.SubClass == usbtmcSubClass {
					return true
				}
			}
		}
	}
	return false
}

type knownUSBDevice struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownInstruments = []knownUSBDevice{
	{VendorID: VendorIDKeithley, ProductID: ProductID3706A, Description: "Keithley 3706A System Switch/Multimeter"},
}
