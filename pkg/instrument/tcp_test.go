package instrument

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

// serveLines answers each received line with reply(line); an empty reply
// sends nothing.
func serveLines(t *testing.T, reply func(string) string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if resp := reply(line[:len(line)-1]); resp != "" {
				conn.Write([]byte(resp + "\r\n"))
			}
		}
	}()
	return ln.Addr().String()
}

func TestTCPQuery(t *testing.T) {
	addr := serveLines(t, func(line string) string {
		if line == Measure {
			return "4.98000e+00"
		}
		return ""
	})

	tr, err := DialTCP(context.Background(), addr, time.Second)
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	s := NewSession(tr, nil)
	defer s.Close()

	if err := s.Send(Reset); err != nil {
		t.Fatalf("Send: %v", err)
	}
	v, err := QueryFloat(s, Measure)
	if err != nil {
		t.Fatalf("QueryFloat: %v", err)
	}
	if v != 4.98 {
		t.Fatalf("value = %v", v)
	}
}

func TestTCPQueryTimeout(t *testing.T) {
	addr := serveLines(t, func(string) string { return "" })

	tr, err := DialTCP(context.Background(), addr, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	s := NewSession(tr, nil)
	defer s.Close()

	_, err = s.Query(Measure)
	var lerr *LinkError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected LinkError, got %v", err)
	}
	var nerr net.Error
	if !errors.As(err, &nerr) || !nerr.Timeout() {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestOpenUnknownTransport(t *testing.T) {
	if _, err := Open(context.Background(), Options{Transport: "gpib"}); err == nil {
		t.Fatal("expected error for unknown transport")
	}
	if _, err := Open(context.Background(), Options{Transport: "tcp"}); err == nil {
		t.Fatal("expected error for tcp without address")
	}

	sim := NewSim()
	s, err := Open(context.Background(), Options{Transport: "sim", Sim: sim})
	if err != nil {
		t.Fatalf("Open sim: %v", err)
	}
	s.Send(Reset)
	if len(sim.Commands()) != 1 {
		t.Fatalf("sim saw %v", sim.Commands())
	}
}
