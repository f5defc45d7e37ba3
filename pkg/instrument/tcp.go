package instrument

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	// DefaultPort is the 3706A raw-socket TSP port.
	DefaultPort    = "5025"
	DefaultTimeout = 5 * time.Second
)

// TCP is a raw-socket transport. Commands and responses are single lines
// terminated by '\n'.
type TCP struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
}

// DialTCP connects to addr, adding DefaultPort when addr carries no port.
func DialTCP(ctx context.Context, addr string, timeout time.Duration) (*TCP, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(strings.Trim(addr, "[]"), DefaultPort)
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return &TCP{conn: conn, r: bufio.NewReader(conn), timeout: timeout}, nil
}

// Write implements Transport.
func (t *TCP) Write(line string) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
		return err
	}
	_, err := t.conn.Write([]byte(line + "\n"))
	return err
}

// ReadLine implements Transport.
func (t *TCP) ReadLine() (string, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
		return "", err
	}
	line, err := t.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Close implements Transport.
func (t *TCP) Close() error {
	return t.conn.Close()
}
