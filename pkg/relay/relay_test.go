package relay

import (
	"errors"
	"reflect"
	"testing"

	"github.com/OpenTraceLab/vacfeed/pkg/instrument"
)

type recorder struct {
	sent []string
	err  error
}

func (r *recorder) Send(cmd string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, cmd)
	return nil
}

func TestAddressInjective(t *testing.T) {
	seen := make(map[int][2]int)
	for _, module := range []int{Module37, Module44} {
		for ch := 1; ch <= MaxChannel; ch++ {
			a := Address(module, ch)
			if prev, ok := seen[a]; ok {
				t.Fatalf("address %d produced by %v and (%d,%d)", a, prev, module, ch)
			}
			seen[a] = [2]int{module, ch}
			if m, c := Split(a); m != module || c != ch {
				t.Fatalf("Split(%d) = (%d,%d), want (%d,%d)", a, m, c, module, ch)
			}
		}
	}
	if Address(1, 89) != 1089 || Address(2, 911) != 2911 {
		t.Fatal("unexpected address arithmetic")
	}
}

func TestRouterBatchesOneCommandPerCall(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(rec, nil)

	if err := r.Close(Module37, 1, 2, 3); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Open(Module37, 2); err != nil {
		t.Fatalf("Open: %v", err)
	}
	want := []string{`channel.close("1001,1002,1003")`, `channel.open("1002")`}
	if !reflect.DeepEqual(rec.sent, want) {
		t.Fatalf("sent = %q, want %q", rec.sent, want)
	}
	if got := r.Closed(); !reflect.DeepEqual(got, []int{1001, 1003}) {
		t.Fatalf("Closed() = %v", got)
	}
}

func TestRouterIdempotent(t *testing.T) {
	sim := instrument.NewSim()
	r := NewRouter(instrument.NewSession(sim, nil), nil)

	steps := []func() error{
		func() error { return r.Close(Module44, 89, 93) },
		func() error { return r.Close(Module44, 89, 93) },
		func() error { return r.Open(Module44, 5) },
		func() error { return r.Close(Module44, 93, 93) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	want := []int{2089, 2093}
	if got := r.Closed(); !reflect.DeepEqual(got, want) {
		t.Fatalf("router Closed() = %v, want %v", got, want)
	}
	if got := sim.Closed(); !reflect.DeepEqual(got, want) {
		t.Fatalf("instrument closed = %v, want %v", got, want)
	}
}

func TestRouterOpenAll(t *testing.T) {
	sim := instrument.NewSim()
	r := NewRouter(instrument.NewSession(sim, nil), nil)

	r.Close(Module37, 89, 93)
	r.Close(Module44, 89)
	if err := r.OpenAll(); err != nil {
		t.Fatalf("OpenAll: %v", err)
	}
	if len(sim.Closed()) != 0 || len(r.Closed()) != 0 {
		t.Fatalf("relays left closed: sim=%v router=%v", sim.Closed(), r.Closed())
	}

	n := len(sim.Commands())
	if err := r.OpenAll(); err != nil {
		t.Fatalf("second OpenAll: %v", err)
	}
	if len(sim.Commands()) != n {
		t.Fatal("OpenAll with nothing closed sent a command")
	}
}

func TestRouterRejectsBadInput(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(rec, nil)

	if err := r.Close(Module37); err == nil {
		t.Error("expected error for empty channel list")
	}
	if err := r.Close(3, 1); err == nil {
		t.Error("expected error for unknown module")
	}
	if err := r.Open(Module44, 0); err == nil {
		t.Error("expected error for channel 0")
	}
	if len(rec.sent) != 0 {
		t.Fatalf("invalid calls sent %q", rec.sent)
	}
}

func TestRouterOnlySwitchesWiringAndSense(t *testing.T) {
	tests := []struct {
		name    string
		module  int
		ch      int
		wantErr bool
	}{
		{"last wiring channel", Module37, MaxChannel, false},
		{"sense", Module44, SenseChannel, false},
		{"past wiring", Module44, MaxChannel + 1, true},
		{"backplane join", Module37, 914, true},
		{"backplane join 44", Module44, 924, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			r := NewRouter(rec, nil)
			err := r.Close(tt.module, tt.ch)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Close(%d, %d) succeeded, sent %q", tt.module, tt.ch, rec.sent)
				}
				if len(rec.sent) != 0 || len(r.Closed()) != 0 {
					t.Fatalf("rejected channel reached the instrument: %q", rec.sent)
				}
				return
			}
			if err != nil {
				t.Fatalf("Close(%d, %d): %v", tt.module, tt.ch, err)
			}
		})
	}
}

func TestRouterKeepsStateOnSendFailure(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(rec, nil)
	r.Close(Module37, 1)

	rec.err = errors.New("link down")
	if err := r.Open(Module37, 1); err == nil {
		t.Fatal("expected send error")
	}
	if got := r.Closed(); !reflect.DeepEqual(got, []int{1001}) {
		t.Fatalf("Closed() = %v, want [1001]", got)
	}
}
