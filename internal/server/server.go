// Package server implements the TCP front end: an accept loop spawning one
// goroutine per connection, each running a buffer-cursor parse/dispatch
// loop over the binary and plaintext wire protocols, against a storage
// engine guarded by a single process-wide exclusive lock.
package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/caskdb/caskdb/internal/command"
	"github.com/caskdb/caskdb/internal/engine"
	"github.com/caskdb/caskdb/internal/wire"
)

// minScratchSize is the floor for a connection's read buffer, per the
// wire protocol's framing guarantee that any single command fits in one
// contiguous buffer without incremental reallocation.
const minScratchSize = 1 << 20 // 1 MiB

// Config holds server-level settings independent of the engine itself.
type Config struct {
	// MaxClients caps concurrent connections; 0 means unlimited.
	MaxClients int
	// ScratchSize overrides the per-connection buffer size; values below
	// minScratchSize are raised to it.
	ScratchSize int
}

// DefaultConfig returns sane defaults for Config.
func DefaultConfig() Config {
	return Config{MaxClients: 10000, ScratchSize: minScratchSize}
}

// Server accepts TCP connections and dispatches the commands it decodes
// from them against a shared storage engine. The engine has no internal
// synchronization, so every operation against it is serialized here by a
// single mutex spanning both the key directory mutation and its disk I/O.
type Server struct {
	addr     string
	eng      *engine.Engine
	cfg      Config
	log      *zap.SugaredLogger
	listener net.Listener

	mu      sync.Mutex // guards every engine operation
	connsWG sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}

	clientsMu sync.Mutex
	clients   map[string]net.Conn
}

// New builds a Server bound to addr, serving requests against eng.
func New(addr string, eng *engine.Engine, cfg Config, log *zap.SugaredLogger) *Server {
	if cfg.ScratchSize < minScratchSize {
		cfg.ScratchSize = minScratchSize
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{
		addr:    addr,
		eng:     eng,
		cfg:     cfg,
		log:     log,
		closed:  make(chan struct{}),
		clients: make(map[string]net.Conn),
	}
}

// Start listens on the configured address and accepts connections until
// Close is called. It blocks until the listener is closed.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: failed to listen on %q: %w", s.addr, err)
	}
	s.listener = ln
	s.log.Infow("server listening", "addr", s.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
			}
			s.log.Errorw("accept failed", "error", err)
			continue
		}

		s.clientsMu.Lock()
		tooMany := s.cfg.MaxClients > 0 && len(s.clients) >= s.cfg.MaxClients
		if !tooMany {
			id := uuid.NewString()
			s.clients[id] = conn
			s.clientsMu.Unlock()
			s.connsWG.Add(1)
			go s.serveConn(id, conn)
			continue
		}
		s.clientsMu.Unlock()
		s.log.Warnw("rejecting connection, max clients reached", "max", s.cfg.MaxClients)
		conn.Close()
	}
}

// Close stops accepting new connections and waits for in-flight
// connections to finish their current command before returning.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.listener != nil {
			err = s.listener.Close()
		}
		// An expired read deadline ends each connection at its next read,
		// after it has replied to every command it already holds.
		s.clientsMu.Lock()
		for _, c := range s.clients {
			c.SetReadDeadline(time.Now())
		}
		s.clientsMu.Unlock()
		s.connsWG.Wait()
	})
	return err
}

func (s *Server) serveConn(id string, conn net.Conn) {
	defer s.connsWG.Done()
	defer func() {
		conn.Close()
		s.clientsMu.Lock()
		delete(s.clients, id)
		s.clientsMu.Unlock()
	}()

	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(5 * time.Minute)
	}

	s.log.Debugw("connection accepted", "id", id, "remote", conn.RemoteAddr())

	buf := make([]byte, s.cfg.ScratchSize)
	cursor := 0 // buf[0:cursor] holds unconsumed bytes, possibly spanning reads
	enc := wire.NewEncoder(conn)

	for {
		consumed, quit, err := s.drain(enc, buf[:cursor])
		if consumed > 0 {
			copy(buf, buf[consumed:cursor])
			cursor -= consumed
		}
		if err != nil {
			s.log.Debugw("closing connection on malformed input", "id", id, "error", err)
			return
		}
		if quit {
			return
		}

		if cursor == len(buf) {
			s.log.Warnw("closing connection, scratch buffer full with no complete command", "id", id)
			return
		}

		n, err := conn.Read(buf[cursor:])
		if n > 0 {
			cursor += n
		}
		if err != nil {
			if err != io.EOF {
				s.log.Debugw("connection read error", "id", id, "error", err)
			}
			return
		}
	}
}

// drain parses and dispatches every complete command currently sitting in
// data, flushing once at the end of the batch so a pipelined burst costs
// one write syscall. It returns the number of bytes consumed, whether the
// connection should close (QUIT), and a non-nil error only for malformed
// input (the caller must close the connection in that case).
func (s *Server) drain(enc *wire.Encoder, data []byte) (consumed int, quit bool, err error) {
	enc.SetAutoFlush(false)
	defer enc.Flush()

	for {
		cmd, n, derr := decodeCommand(data[consumed:])
		if derr == wire.ErrIncomplete {
			return consumed, false, nil
		}
		if derr != nil {
			return consumed, false, derr
		}

		consumed += n
		if s.execute(enc, cmd) {
			return consumed, true, nil
		}
	}
}

// decodeCommand tries the plaintext fallback first, then the binary
// framing, per the wire protocol's parser-precedence contract. Malformed
// plaintext input is not itself fatal — only when both parsers reject the
// buffer does the connection close.
func decodeCommand(data []byte) (command.Command, int, error) {
	if len(data) == 0 {
		return command.Command{}, 0, wire.ErrIncomplete
	}

	if looksLikeText(data[0]) {
		tokens, n, err := wire.DecodeText(data)
		if err == nil {
			cmd, cerr := command.FromText(tokens)
			if cerr != nil {
				return command.Command{}, 0, fmt.Errorf("%w: %v", wire.ErrMalformed, cerr)
			}
			return cmd, n, nil
		}
		if err == wire.ErrIncomplete {
			return command.Command{}, 0, wire.ErrIncomplete
		}
		return command.Command{}, 0, err
	}

	v, n, err := wire.Decode(data)
	if err != nil {
		return command.Command{}, 0, err
	}
	cmd, cerr := command.FromFrame(v)
	if cerr != nil {
		return command.Command{}, 0, fmt.Errorf("%w: %v", wire.ErrMalformed, cerr)
	}
	return cmd, n, nil
}

// looksLikeText reports whether the first byte rules out binary framing,
// whose five frame types always begin with one of +-:$*.
func looksLikeText(b byte) bool {
	switch b {
	case wire.TypeSimpleString, wire.TypeError, wire.TypeInteger, wire.TypeBulkString, wire.TypeArray:
		return false
	default:
		return true
	}
}

// execute runs one command against the engine and writes its reply. It
// returns true if the connection should close after this reply (QUIT).
func (s *Server) execute(enc *wire.Encoder, cmd command.Command) bool {
	switch cmd.Kind {
	case command.Ping:
		enc.WriteSimpleString("PONG")

	case command.Quit:
		enc.WriteSimpleString("OK")
		return true

	case command.DBSize:
		s.mu.Lock()
		n := s.eng.DBSize()
		s.mu.Unlock()
		enc.WriteInteger(int64(n))

	case command.Get:
		s.mu.Lock()
		val, err := s.eng.Get(cmd.Key)
		s.mu.Unlock()
		if errors.Is(err, engine.ErrKeyNotFound) {
			enc.WriteNull()
		} else if err != nil {
			enc.WriteError(fmt.Sprintf("ERR %v", err))
		} else {
			enc.WriteSimpleString(string(val))
		}

	case command.Set:
		s.mu.Lock()
		err := s.eng.Put(cmd.Key, []byte(cmd.Value))
		s.mu.Unlock()
		if err != nil {
			enc.WriteError("failed to set key value pair")
		} else {
			enc.WriteSimpleString("OK")
		}

	case command.Keys:
		s.writeKeys(enc, cmd.Pattern)

	case command.Echo:
		enc.WriteSimpleString(cmd.Msg)

	case command.CommandDocs:
		s.writeDocs(enc)

	default:
		enc.WriteError("ERR unknown command")
	}
	return false
}

func (s *Server) writeKeys(enc *wire.Encoder, pattern *string) {
	var re *regexp.Regexp
	if pattern != nil {
		compiled, err := command.CompilePattern(*pattern)
		if err != nil {
			enc.WriteError("invalid regex pattern")
			return
		}
		re = compiled
	}

	s.mu.Lock()
	keys := s.eng.Keys()
	s.mu.Unlock()

	if re == nil {
		enc.WriteStringArray(keys)
		return
	}

	matched := make([]string, 0, len(keys))
	for _, k := range keys {
		if re.MatchString(k) {
			matched = append(matched, k)
		}
	}
	enc.WriteStringArray(matched)
}

func (s *Server) writeDocs(enc *wire.Encoder) {
	enc.WriteArrayHeader(len(command.Docs))
	for _, d := range command.Docs {
		enc.WriteArrayHeader(2)
		enc.WriteBulkString([]byte(d.Name))
		enc.WriteStringArray(d.Lines)
	}
}
