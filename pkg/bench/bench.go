// Package bench models the feedthrough test fixture for the simulated
// mainframe.
//
// # Overview
//
// A Bench answers dmm.measure() from the set of closed relays using plain
// circuit arithmetic. With the continuity supply routed it solves the
// R44 / wire / R37 divider; with the hi-pot supply routed it solves the
// test resistor against the DMM input and every leakage path on the 44-pin
// bus; with neither it returns the pinout reference voltage of the
// connected wire. Faults are injected per wire or per 44-pin channel.
package bench

import (
	"errors"
	"sort"

	"github.com/OpenTraceLab/vacfeed/pkg/chanmap"
	"github.com/OpenTraceLab/vacfeed/pkg/instrument"
	"github.com/OpenTraceLab/vacfeed/pkg/relay"
)

// Fixture defaults.
const (
	DefaultSupply5    = 4.98
	DefaultSupply250  = 250.0
	DefaultWireOhms   = 0.3
	DefaultRdmm       = 10e6
	DefaultInsulation = 1e12
)

// Fixed fixture channels.
const (
	contRef37     = 89
	hipotGround37 = 90
	contSupply44  = 89
	hipotTest44   = 91
	hipotDirect44 = 92
)

var (
	errNoSense     = errors.New("bench: no sense channel closed")
	errBothSense   = errors.New("bench: both sense channels closed")
	errSupplyClash = errors.New("bench: continuity and hi-pot supplies routed together")
)

// Wire identifies one conductor of the feedthrough.
type Wire struct {
	Pin37 int
	Pin44 int
}

// Bench is a simulated fixture with a feedthrough wired per a channel map.
type Bench struct {
	Supply5   float64
	Supply250 float64
	R37       float64
	R44       float64
	Rtest     float64
	Rdmm      float64
	WireOhms  float64
	// Insulation is the leakage resistance of a healthy 44-pin net.
	Insulation float64
	// Offset37 is added to every module 1 reading.
	Offset37 float64

	// Broken wires do not conduct.
	Broken map[Wire]bool
	// Resistance overrides WireOhms per wire.
	Resistance map[Wire]float64
	// Leaks overrides Insulation per 44-pin channel.
	Leaks map[int]float64
	// PinoutOffset is added to the reference voltage seen through a 37-pin
	// channel.
	PinoutOffset map[int]float64

	nets     map[int][]int // pin37 -> pin44s
	expected map[int]float64
	pins37   []int
	pins44   []int
}

// New returns a healthy fixture for m.
func New(m *chanmap.Map) *Bench {
	b := &Bench{
		Supply5:      DefaultSupply5,
		Supply250:    DefaultSupply250,
		R37:          5.3,
		R44:          10.3,
		Rtest:        1e6,
		Rdmm:         DefaultRdmm,
		WireOhms:     DefaultWireOhms,
		Insulation:   DefaultInsulation,
		Broken:       make(map[Wire]bool),
		Resistance:   make(map[Wire]float64),
		Leaks:        make(map[int]float64),
		PinoutOffset: make(map[int]float64),
		nets:         make(map[int][]int),
		expected:     make(map[int]float64),
	}

	seen44 := make(map[int]bool)
	for _, row := range m.Rows() {
		for _, p37 := range row.Wires() {
			if _, ok := b.nets[p37]; !ok {
				b.pins37 = append(b.pins37, p37)
			}
			b.nets[p37] = append(b.nets[p37], row.Pin44)
			if v, ok := row.ExpectedVoltage(); ok {
				b.expected[p37] = v
			}
		}
		if !seen44[row.Pin44] {
			seen44[row.Pin44] = true
			b.pins44 = append(b.pins44, row.Pin44)
		}
	}
	sort.Ints(b.pins37)
	sort.Ints(b.pins44)
	return b
}

// Break disconnects one wire.
func (b *Bench) Break(pin37, pin44 int) {
	b.Broken[Wire{pin37, pin44}] = true
}

// Leak sets the insulation resistance of a 44-pin net.
func (b *Bench) Leak(pin44 int, ohms float64) {
	b.Leaks[pin44] = ohms
}

// Attach installs the bench as the simulator's measurement source.
func (b *Bench) Attach(sim *instrument.Sim) {
	sim.OnMeasure = b.Measure
}

// Measure implements instrument.MeasureHook.
func (b *Bench) Measure(closed map[int]bool) (float64, error) {
	sense1 := closed[relay.Address(relay.Module37, relay.SenseChannel)]
	sense2 := closed[relay.Address(relay.Module44, relay.SenseChannel)]
	switch {
	case sense1 && sense2:
		return 0, errBothSense
	case !sense1 && !sense2:
		return 0, errNoSense
	}

	is := func(module, ch int) bool { return closed[relay.Address(module, ch)] }
	cont := is(relay.Module44, contSupply44)
	hv := is(relay.Module44, hipotTest44) || is(relay.Module44, hipotDirect44)

	var v1, v2 float64
	switch {
	case cont && hv:
		return 0, errSupplyClash
	case cont:
		v1, v2 = b.continuity(is)
	case hv:
		v1, v2 = 0, b.hipot(is, sense2)
	default:
		v1 = b.pinout(is)
	}

	if sense1 {
		return v1 + b.Offset37, nil
	}
	return v2, nil
}

func (b *Bench) wireOhms(w Wire) (float64, bool) {
	if b.Broken[w] {
		return 0, false
	}
	if r, ok := b.Resistance[w]; ok {
		return r, true
	}
	return b.WireOhms, true
}

// bridge returns the conductance between the two buses through the closed
// 44-pin and 37-pin channels.
func (b *Bench) bridge(is func(module, ch int) bool) float64 {
	var g float64
	for _, p37 := range b.pins37 {
		if !is(relay.Module37, p37) {
			continue
		}
		for _, p44 := range b.nets[p37] {
			if !is(relay.Module44, p44) {
				continue
			}
			if r, ok := b.wireOhms(Wire{p37, p44}); ok {
				g += 1 / r
			}
		}
	}
	return g
}

func (b *Bench) continuity(is func(module, ch int) bool) (v1, v2 float64) {
	g := b.bridge(is)
	if g == 0 || !is(relay.Module37, contRef37) {
		return 0, b.Supply5
	}
	rw := 1 / g
	i := b.Supply5 / (b.R44 + rw + b.R37)
	return i * b.R37, i * (b.R37 + rw)
}

func (b *Bench) hipot(is func(module, ch int) bool, dmmOnBus bool) float64 {
	if is(relay.Module44, hipotDirect44) {
		return b.Supply250
	}

	var g float64
	if dmmOnBus {
		g += 1 / b.Rdmm
	}
	grounded := is(relay.Module37, hipotGround37)
	for _, p44 := range b.pins44 {
		if !is(relay.Module44, p44) {
			continue
		}
		leak := b.Insulation
		if r, ok := b.Leaks[p44]; ok {
			leak = r
		}
		g += 1 / leak
	}
	if grounded {
		g += b.bridge(is)
	}
	if g == 0 {
		return b.Supply250
	}
	load := 1 / g
	return b.Supply250 * load / (b.Rtest + load)
}

func (b *Bench) pinout(is func(module, ch int) bool) float64 {
	for _, p37 := range b.pins37 {
		if !is(relay.Module37, p37) {
			continue
		}
		for _, p44 := range b.nets[p37] {
			if b.Broken[Wire{p37, p44}] {
				continue
			}
			return b.expected[p37] + b.PinoutOffset[p37]
		}
	}
	return 0
}
