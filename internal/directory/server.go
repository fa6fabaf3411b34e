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

	"github.com/sirupsen/logrus"

	"paritystore/internal/peer"
)

// Server is an in-memory directory. A registration lasts as long as the
// connection that made it.
type Server struct {
	mu    sync.Mutex
	nodes []peer.Peer
	log   logrus.FieldLogger
	wg    sync.WaitGroup
}

// NewServer creates an empty directory.
func NewServer(log logrus.FieldLogger) *Server {
	return &Server{log: log}
}

// Serve accepts connections on lis until ctx ends.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	s.log.Infof("Directory listening on %s", lis.Addr())
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("directory accept: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// Nodes returns the registered nodes in registration order.
func (s *Server) Nodes() []peer.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]peer.Peer(nil), s.nodes...)
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	var owned []peer.Peer
	defer func() {
		for _, p := range owned {
			s.remove(p)
		}
	}()

	log := s.log.WithField("client", conn.RemoteAddr().String())
	w := bufio.NewWriter(conn)
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)

		var reply []string
		switch {
		case len(fields) == 3 && fields[0] == "INSC":
			p, err := parseRegistration(fields[1], fields[2])
			if err != nil {
				log.Warnf("Bad registration %q: %v", line, err)
				reply = []string{"false"}
				break
			}
			if s.add(p) {
				owned = append(owned, p)
				log.Infof("Registered node %s", p)
				reply = []string{"true"}
			} else {
				log.Warnf("Node %s already registered", p)
				reply = []string{"false"}
			}
		case line == "nodes":
			for _, p := range s.Nodes() {
				reply = append(reply, fmt.Sprintf("node %s %d", p.Host, p.Port))
			}
			reply = append(reply, "end")
		default:
			log.Warnf("Unknown directory command %q", line)
			reply = []string{"error"}
		}

		for _, r := range reply {
			w.WriteString(r + "\n")
		}
		if err := w.Flush(); err != nil {
			log.Warnf("Directory client write failed: %v", err)
			return
		}
	}
}

func (s *Server) add(p peer.Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.nodes {
		if n == p {
			return false
		}
	}
	s.nodes = append(s.nodes, p)
	return true
}

func (s *Server) remove(p peer.Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.nodes {
		if n == p {
			s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)
			s.log.Infof("Node %s left the directory", p)
			return
		}
	}
}

func parseRegistration(host, portStr string) (peer.Peer, error) {
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return peer.Peer{}, fmt.Errorf("invalid port %q", portStr)
	}
	if net.ParseIP(host) == nil {
		return peer.Peer{}, fmt.Errorf("invalid ip %q", host)
	}
	return peer.Peer{Host: host, Port: port}, nil
}
