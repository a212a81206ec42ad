package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/genricoloni/screend/internal/cache"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	maxMessageSize = 4 << 20
	idleTimeout    = 5 * time.Minute
	writeTimeout   = 10 * time.Second
	requestTimeout = 2 * time.Minute
)

// Session is the player state the channel operates on
type Session interface {
	Pair(ctx context.Context, code string, kiosk bool, exitPassword string) error
	Disconnect(ctx context.Context) error
	Status(ctx context.Context) Status
}

// CacheManager answers the cache-manager protocol
type CacheManager interface {
	Send(ctx context.Context, req cache.Request) (cache.Response, error)
}

// Kiosk handles exit confirmations
type Kiosk interface {
	Exit(ctx context.Context, password string) error
	Cancel(ctx context.Context)
}

// Server accepts operator connections on the loopback interface
type Server struct {
	logger  *zap.Logger
	addr    string
	session Session
	cache   CacheManager
	kiosk   Kiosk

	upgrader websocket.Upgrader

	mu       sync.Mutex
	running  bool
	listener net.Listener
	srv      *http.Server
	conns    map[*websocket.Conn]struct{}
	wg       sync.WaitGroup
	handlers sync.WaitGroup
}

// NewServer creates a control server listening on addr
func NewServer(logger *zap.Logger, addr string, session Session, cache CacheManager, kiosk Kiosk) *Server {
	s := &Server{
		logger:  logger,
		addr:    addr,
		session: session,
		cache:   cache,
		kiosk:   kiosk,
		conns:   make(map[*websocket.Conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// Browser pages must never reach the channel, operator tools send no Origin
		CheckOrigin: func(r *http.Request) bool {
			return r.Header.Get("Origin") == ""
		},
	}
	return s
}

// Handler returns the HTTP handler serving Path
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.serveWS)
	return mux
}

// Start listens on the configured address
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("control channel listen on %s failed: %w", s.addr, err)
	}
	s.listener = ln
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Control channel stopped", zap.Error(err))
		}
	}()

	s.logger.Info("Control channel listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, useful when listening on port 0
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop closes the listener and every open connection
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.srv
	// hijacked connections are not tracked by http.Server
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	err := srv.Shutdown(ctx)
	s.wg.Wait()
	s.handlers.Wait()
	s.logger.Info("Control channel stopped")
	return err
}

// track registers conn; it reports false once the server is stopping
func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.conns[conn] = struct{}{}
	s.handlers.Add(1)
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.handlers.Done()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Control upgrade failed",
			zap.String("remote", r.RemoteAddr),
			zap.String("origin", r.Header.Get("Origin")),
			zap.Error(err))
		return
	}
	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	defer func() {
		_ = conn.Close()
		s.untrack(conn)
	}()

	conn.SetReadLimit(maxMessageSize)
	s.logger.Debug("Control client connected", zap.String("remote", r.RemoteAddr))

	for {
		if err := conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("Control client read failed", zap.Error(err))
			}
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		reply := s.dispatch(ctx, req)
		cancel()

		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return
		}
		if err := conn.WriteJSON(reply); err != nil {
			s.logger.Debug("Control reply failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) Reply {
	reply := Reply{ID: req.ID}
	reply.Tag = req.Tag

	var err error
	switch req.Tag {
	case TagPair:
		err = s.session.Pair(ctx, req.Code, req.Kiosk, req.ExitPassword)

	case TagDisconnect:
		err = s.session.Disconnect(ctx)

	case TagStatus:
		status := s.session.Status(ctx)
		reply.Status = &status

	case TagKioskExit:
		err = s.kiosk.Exit(ctx, req.Password)

	case TagKioskCancel:
		s.kiosk.Cancel(ctx)

	case cache.TagCacheMedia, cache.TagCacheBundle, cache.TagClearCache, cache.TagCacheSize, cache.TagSkipWaiting:
		var resp cache.Response
		resp, err = s.cache.Send(ctx, req.Request)
		if err == nil {
			reply.Response = resp
			return reply
		}

	default:
		err = fmt.Errorf("unknown control message tag %q", req.Tag)
	}

	if err != nil {
		reply.Error = err.Error()
		s.logger.Warn("Control request failed", zap.String("tag", string(req.Tag)), zap.Error(err))
		return reply
	}
	reply.OK = true
	return reply
}
