package core

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hotshardd/types"
)

type testEventConsumer struct {
	data chan types.CommandEvent
}

func (c *testEventConsumer) ConsumeEvent(e types.CommandEvent) error {
	c.data <- e
	return nil
}

// testMonitorServer emulates a shard: it answers the AUTH/MONITOR handshake
// with status replies and then pushes the given lines over the wire.
type testMonitorServer struct {
	l        net.Listener
	password string
	lines    []string
}

func newTestMonitorServer(t *testing.T, password string, lines []string) *testMonitorServer {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &testMonitorServer{l: l, password: password, lines: lines}
	go s.serve()
	return s
}

func (s *testMonitorServer) Addr() string {
	return s.l.Addr().String()
}

func (s *testMonitorServer) Close() {
	_ = s.l.Close()
}

func readCommand(br *bufio.Reader) ([]string, error) {
	head, err := br.ReadString('\n')
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimRight(strings.TrimPrefix(head, "*"), "\r\n"))
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if _, err = br.ReadString('\n'); err != nil {
			return nil, err
		}
		var arg string
		if arg, err = br.ReadString('\n'); err != nil {
			return nil, err
		}
		args = append(args, strings.TrimRight(arg, "\r\n"))
	}
	return args, nil
}

func (s *testMonitorServer) serve() {
	for {
		conn, err := s.l.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *testMonitorServer) handle(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	for {
		args, err := readCommand(br)
		if err != nil {
			return
		}
		switch strings.ToUpper(args[0]) {
		case "AUTH":
			if len(args) < 2 || args[1] != s.password {
				_, _ = conn.Write([]byte("-ERR invalid password\r\n"))
				return
			}
			_, _ = conn.Write([]byte("+OK\r\n"))
		case "MONITOR":
			if _, err = conn.Write([]byte("+OK\r\n")); err != nil {
				return
			}
			for _, line := range s.lines {
				if _, err = conn.Write([]byte("+" + line + "\r\n")); err != nil {
					return
				}
			}
			// keep streaming idle until the client hangs up
			_, _ = br.ReadString('\n')
			return
		default:
			_, _ = conn.Write([]byte("-ERR unknown command\r\n"))
		}
	}
}

func TestSession_Run(t *testing.T) {
	server := newTestMonitorServer(t, "", []string{
		`1700000000.000001 [0 10.0.0.5:54321] "GET" "user:42"`,
		`1700000000.000002 [0 10.0.0.5:54321] "SET" "user:1234567890123:session" "x"`,
		`garbage line`,
		`1700000000.000003 [0 10.0.0.5:54321] "PING"`,
	})
	defer server.Close()

	host, portStr, _ := net.SplitHostPort(server.Addr())
	port, _ := strconv.Atoi(portStr)

	ec := &testEventConsumer{data: make(chan types.CommandEvent, 10)}

	var s *Session
	var err error
	s, err = NewSession(SessionOptions{
		JobID:    "test-job",
		Shard:    types.ShardInfo{Name: "shard-0001", Host: host, Port: port, Role: types.RoleReplica},
		Duration: time.Millisecond * 300,
		Next:     ec,
	})
	if !assert.NoError(t, err, "should not fail to create Session") {
		return
	}

	assert.NoError(t, s.Run(context.Background()), "should not fail to run Session")

	assert.Equal(t, types.StateCompleted, s.State())
	st := s.Status()
	assert.Equal(t, int64(3), st.Commands, "should count parsed lines")
	assert.Equal(t, int64(1), st.Drops, "should count malformed lines")
	assert.False(t, st.EndedAt.IsZero())

	e := <-ec.data
	assert.Equal(t, "test-job", e.JobID)
	assert.Equal(t, "shard-0001", e.Shard)
	assert.Equal(t, "GET", e.Command)
	assert.Equal(t, "user:42", e.Key)
	assert.Equal(t, "user:42", e.KeyPattern)

	e = <-ec.data
	assert.Equal(t, "user:{USERID}:session", e.KeyPattern)

	e = <-ec.data
	assert.Equal(t, "PING", e.Command)
	assert.Equal(t, NoKeyPattern, e.KeyPattern, "key-less command should carry the sentinel pattern")
}

func TestSession_RunWithAuth(t *testing.T) {
	server := newTestMonitorServer(t, "secret", []string{
		`1700000000.000001 [0 10.0.0.5:54321] "GET" "user:42"`,
	})
	defer server.Close()

	host, portStr, _ := net.SplitHostPort(server.Addr())
	port, _ := strconv.Atoi(portStr)

	ec := &testEventConsumer{data: make(chan types.CommandEvent, 10)}

	s, err := NewSession(SessionOptions{
		JobID:    "test-job",
		Shard:    types.ShardInfo{Name: "shard-0001", Host: host, Port: port},
		Password: "secret",
		Duration: time.Millisecond * 200,
		Next:     ec,
	})
	if !assert.NoError(t, err) {
		return
	}
	assert.NoError(t, s.Run(context.Background()))
	assert.Equal(t, types.StateCompleted, s.State())
	assert.Equal(t, int64(1), s.Status().Commands)
}

func TestSession_RunBadAuth(t *testing.T) {
	server := newTestMonitorServer(t, "secret", nil)
	defer server.Close()

	host, portStr, _ := net.SplitHostPort(server.Addr())
	port, _ := strconv.Atoi(portStr)

	ec := &testEventConsumer{data: make(chan types.CommandEvent, 10)}

	s, err := NewSession(SessionOptions{
		JobID:    "test-job",
		Shard:    types.ShardInfo{Name: "shard-0001", Host: host, Port: port},
		Password: "wrong",
		Duration: time.Millisecond * 200,
		Next:     ec,
	})
	if !assert.NoError(t, err) {
		return
	}
	assert.Error(t, s.Run(context.Background()), "should fail the handshake")
	assert.Equal(t, types.StateFailed, s.State())
	assert.NotEmpty(t, s.Status().Error)
}

func TestSession_RunConnectFailure(t *testing.T) {
	// grab a port that is guaranteed closed
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if !assert.NoError(t, err) {
		return
	}
	host, portStr, _ := net.SplitHostPort(l.Addr().String())
	port, _ := strconv.Atoi(portStr)
	_ = l.Close()

	ec := &testEventConsumer{data: make(chan types.CommandEvent, 1)}

	s, serr := NewSession(SessionOptions{
		JobID:       "test-job",
		Shard:       types.ShardInfo{Name: "shard-0001", Host: host, Port: port},
		Duration:    time.Second,
		DialTimeout: time.Millisecond * 500,
		Next:        ec,
	})
	if !assert.NoError(t, serr) {
		return
	}
	assert.Error(t, s.Run(context.Background()), "should fail to connect")
	assert.Equal(t, types.StateFailed, s.State())
	assert.NotEmpty(t, s.Status().Error)
	assert.Zero(t, len(ec.data), "failed session should emit nothing")
}

func TestSession_RunCancel(t *testing.T) {
	server := newTestMonitorServer(t, "", []string{
		`1700000000.000001 [0 10.0.0.5:54321] "GET" "user:42"`,
	})
	defer server.Close()

	host, portStr, _ := net.SplitHostPort(server.Addr())
	port, _ := strconv.Atoi(portStr)

	ec := &testEventConsumer{data: make(chan types.CommandEvent, 10)}

	s, err := NewSession(SessionOptions{
		JobID:    "test-job",
		Shard:    types.ShardInfo{Name: "shard-0001", Host: host, Port: port},
		Duration: time.Minute,
		Next:     ec,
	})
	if !assert.NoError(t, err) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan interface{})
	go func() {
		assert.NoError(t, s.Run(ctx), "cancellation should finalize, not fail")
		close(done)
	}()

	time.Sleep(time.Millisecond * 200)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second * 2):
		t.Fatal("session did not finalize after cancel")
	}
	assert.Equal(t, types.StateCompleted, s.State())
	assert.Equal(t, int64(1), s.Status().Commands, "buffered lines should be drained, not discarded")
}
