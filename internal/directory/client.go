package directory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"paritystore/internal/peer"
)

var (
	// ErrRegistrationRejected is returned when the directory refuses INSC.
	ErrRegistrationRejected = errors.New("directory rejected registration")
	// ErrMalformedReply is returned for directory lines that do not follow
	// the protocol.
	ErrMalformedReply = errors.New("malformed directory reply")
)

// Client is a directory connection. Requests are serialised: the protocol
// has no request identifiers, so one exchange completes before the next.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	self *peer.Peer
	log  logrus.FieldLogger
}

// Dial connects to the directory at addr.
func Dial(ctx context.Context, addr string, log logrus.FieldLogger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to directory %s: %w", addr, err)
	}
	return &Client{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
		log:  log.WithField("directory", addr),
	}, nil
}

// LocalHost returns the local IP this client uses to reach the directory.
func (c *Client) LocalHost() string {
	host, _, err := net.SplitHostPort(c.conn.LocalAddr().String())
	if err != nil {
		return c.conn.LocalAddr().String()
	}
	return host
}

// Register sends INSC for host:port. An empty host means LocalHost().
func (c *Client) Register(ctx context.Context, host string, port int) (bool, error) {
	if host == "" {
		host = c.LocalHost()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := fmt.Sprintf("INSC %s %d", host, port)
	c.log.Infof("Sending to directory: %s", line)
	if err := c.send(ctx, line); err != nil {
		return false, err
	}
	reply, err := c.readLine()
	if err != nil {
		return false, err
	}
	if reply != "true" {
		c.log.Warnf("Registration of %s:%d refused: %q", host, port, reply)
		return false, nil
	}

	c.self = &peer.Peer{Host: host, Port: port}
	return true, nil
}

// Refresh asks the directory for every registered node and returns all of
// them except this one.
func (c *Client) Refresh(ctx context.Context) ([]peer.Peer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, "nodes"); err != nil {
		return nil, err
	}

	peers := make([]peer.Peer, 0)
	for {
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		if line == "end" {
			break
		}
		p, err := parseNodeLine(line)
		if err != nil {
			return nil, err
		}
		if c.self != nil && p == *c.self {
			continue
		}
		peers = append(peers, p)
	}
	c.log.Debugf("Directory lists %d peers", len(peers))
	return peers, nil
}

// Close closes the directory connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) send(ctx context.Context, line string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set directory deadline: %w", err)
	}
	if _, err := c.w.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write to directory: %w", err)
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("failed to write to directory: %w", err)
	}
	return nil
}

func (c *Client) readLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read from directory: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// parseNodeLine parses "node <ip> <port>".
func parseNodeLine(line string) (peer.Peer, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "node" {
		return peer.Peer{}, fmt.Errorf("%w: %q", ErrMalformedReply, line)
	}
	port, err := strconv.Atoi(fields[2])
	if err != nil || port <= 0 || port > 65535 {
		return peer.Peer{}, fmt.Errorf("%w: bad port in %q", ErrMalformedReply, line)
	}
	return peer.Peer{Host: fields[1], Port: port}, nil
}

// dialTimeout bounds the initial connection attempt made by DialTimeout.
const dialTimeout = 5 * time.Second

// DialTimeout is Dial with a bounded connection attempt.
func DialTimeout(addr string, log logrus.FieldLogger) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	return Dial(ctx, addr, log)
}
