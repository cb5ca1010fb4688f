package supervisor

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/watchexec/watchexec/internal/models"
)

// Socket is one listening socket owned by the supervisor and inherited by
// every child across restarts.
type Socket struct {
	Type string // "tcp" or "udp"
	Addr string

	file *os.File
}

// ParseSocketSpec parses a --socket value: `PORT`, `HOST:PORT`, or
// `TYPE::ADDR` where TYPE is tcp or udp.
func ParseSocketSpec(spec string) (*Socket, error) {
	typ := "tcp"
	addr := spec
	if t, rest, found := strings.Cut(spec, "::"); found {
		typ = strings.ToLower(t)
		addr = rest
	}
	if typ != "tcp" && typ != "udp" {
		return nil, models.NewError(models.KindConfiguration, "socket-type",
			fmt.Errorf("unsupported socket type %q", typ))
	}
	if _, err := strconv.Atoi(addr); err == nil {
		addr = "127.0.0.1:" + addr
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, models.NewError(models.KindConfiguration, "socket-addr",
			fmt.Errorf("invalid socket address %q: %w", addr, err))
	}
	return &Socket{Type: typ, Addr: addr}, nil
}

// Open binds the socket and captures its file for inheritance.
func (s *Socket) Open() error {
	switch s.Type {
	case "udp":
		conn, err := net.ListenPacket("udp", s.Addr)
		if err != nil {
			return models.NewError(models.KindConfiguration, "socket-bind", err)
		}
		file, err := conn.(*net.UDPConn).File()
		if err != nil {
			conn.Close()
			return models.NewError(models.KindConfiguration, "socket-file", err)
		}
		conn.Close()
		s.file = file
	default:
		ln, err := net.Listen("tcp", s.Addr)
		if err != nil {
			return models.NewError(models.KindConfiguration, "socket-bind", err)
		}
		file, err := ln.(*net.TCPListener).File()
		if err != nil {
			ln.Close()
			return models.NewError(models.KindConfiguration, "socket-file", err)
		}
		ln.Close()
		s.file = file
	}
	return nil
}

// File returns the inheritable file, nil before Open.
func (s *Socket) File() *os.File { return s.file }

// Close releases the socket.
func (s *Socket) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// SocketSet is the full set passed to children.
type SocketSet struct {
	Sockets []*Socket
}

// OpenSockets parses and binds all --socket specs.
func OpenSockets(specs []string) (*SocketSet, error) {
	set := &SocketSet{}
	for _, spec := range specs {
		sock, err := ParseSocketSpec(spec)
		if err != nil {
			set.Close()
			return nil, err
		}
		if err := sock.Open(); err != nil {
			set.Close()
			return nil, err
		}
		set.Sockets = append(set.Sockets, sock)
	}
	return set, nil
}

// Files lists the inheritable files, in fd order.
func (s *SocketSet) Files() []*os.File {
	if s == nil {
		return nil
	}
	out := make([]*os.File, 0, len(s.Sockets))
	for _, sock := range s.Sockets {
		out = append(out, sock.File())
	}
	return out
}

// Env yields the conventional socket-activation variables. The first
// inherited fd lands at 3, after stdio.
func (s *SocketSet) Env() map[string]string {
	if s == nil || len(s.Sockets) == 0 {
		return nil
	}
	return map[string]string{
		"LISTEN_FDS":          strconv.Itoa(len(s.Sockets)),
		"LISTEN_FDS_FIRST_FD": "3",
	}
}

// Close releases every socket.
func (s *SocketSet) Close() {
	for _, sock := range s.Sockets {
		_ = sock.Close()
	}
}
