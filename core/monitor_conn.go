package core

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// monitorConn owns one raw connection to a shard's diagnostic stream. It
// speaks just enough of the wire protocol to authenticate, start MONITOR and
// consume the pushed status lines; it is deliberately not a general client
// and never issues data-plane commands.
type monitorConn struct {
	conn net.Conn
	br   *bufio.Reader
}

// dialMonitor connects to addr, authenticates if a password is given, and
// switches the connection into MONITOR mode.
func dialMonitor(ctx context.Context, addr, password string, timeout time.Duration) (*monitorConn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	mc := &monitorConn{conn: conn, br: bufio.NewReaderSize(conn, 64*1024)}
	if password != "" {
		if err = mc.command(timeout, "AUTH", password); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	if err = mc.command(timeout, "MONITOR"); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return mc, nil
}

// command writes one request and expects a single status reply.
func (m *monitorConn) command(timeout time.Duration, args ...string) (err error) {
	var b strings.Builder
	b.WriteString("*" + strconv.Itoa(len(args)) + "\r\n")
	for _, a := range args {
		b.WriteString("$" + strconv.Itoa(len(a)) + "\r\n")
		b.WriteString(a)
		b.WriteString("\r\n")
	}
	if err = m.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return
	}
	if _, err = m.conn.Write([]byte(b.String())); err != nil {
		return
	}
	var line string
	if line, err = m.readRawLine(); err != nil {
		return
	}
	if !strings.HasPrefix(line, "+") {
		return fmt.Errorf("%s: unexpected reply %q", args[0], line)
	}
	// clear the handshake deadline, streaming reads block until close
	return m.conn.SetDeadline(time.Time{})
}

// ReadLine blocks until the next pushed line arrives, returning it with the
// status prefix stripped. Closing the connection unblocks it.
func (m *monitorConn) ReadLine() (string, error) {
	line, err := m.readRawLine()
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(line, "+"), nil
}

func (m *monitorConn) readRawLine() (string, error) {
	line, err := m.br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (m *monitorConn) Close() error {
	return m.conn.Close()
}
