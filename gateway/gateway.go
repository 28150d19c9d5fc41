// Package gateway is the websocket front end. It upgrades connections,
// builds the per-connection session context, routes inbound events by verb
// into the pipeline, and writes (status, message) responses back.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/torocatala/dino/activity"
	"github.com/torocatala/dino/errors"
	"github.com/torocatala/dino/metric"
	"github.com/torocatala/dino/pipeline"
	"github.com/torocatala/dino/session"
	"github.com/torocatala/dino/status"
)

// Config holds the websocket listener settings.
type Config struct {
	Host            string
	Port            int
	ReadBufferSize  int
	WriteBufferSize int
}

// Response is one reply frame written back to the client.
type Response struct {
	Verb    string `json:"verb"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

// Server accepts websocket connections and feeds their events through the
// pipeline. One connection's events are processed sequentially; different
// connections run concurrently.
type Server struct {
	config   Config
	pipe     *pipeline.Pipeline
	metrics  *metric.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
}

// New creates a gateway server. metrics may be nil to disable recording.
func New(cfg Config, pipe *pipeline.Pipeline, metrics *metric.Metrics, logger *slog.Logger) *Server {
	if cfg.ReadBufferSize == 0 {
		cfg.ReadBufferSize = 1024
	}
	if cfg.WriteBufferSize == 0 {
		cfg.WriteBufferSize = 1024
	}
	return &Server{
		config:  cfg,
		pipe:    pipe,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP handler serving the websocket endpoint at /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start starts the listener. It blocks until the server exits.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("server already running"),
			"Gateway", "Start", "start listener")
	}
	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.mu.Unlock()

	s.logger.Info("gateway listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "Gateway", "Start",
			fmt.Sprintf("listen on %s", server.Addr))
	}
	return nil
}

// Stop shuts the listener down, waiting for in-flight handlers.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Gateway", "Stop", "shutdown listener")
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.RecordSessionOpened()
		defer s.metrics.RecordSessionClosed()
	}

	// Session attributes arrive as query parameters set by the auth layer in
	// front of this server. The connection starts unauthenticated when no
	// user_id is present; a login event fills it in.
	sess := sessionFromQuery(r)

	s.logger.Debug("connection opened",
		"remote", r.RemoteAddr,
		"user_id", sess.UserID())

	for {
		raw := map[string]any{}
		if err := conn.ReadJSON(&raw); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("connection read failed", "remote", r.RemoteAddr, "error", err)
			}
			return
		}

		verb, _ := raw["verb"].(string)
		if verb == "" {
			s.writeResponse(conn, "", status.ValidationError, "no verb on event")
			continue
		}

		if s.metrics != nil {
			s.metrics.RecordEventReceived(verb)
		}

		code, message := s.pipe.Process(r.Context(), verb, raw, sess)

		if s.metrics != nil {
			s.metrics.RecordEventProcessed(verb, fmt.Sprintf("%d", int(code)))
		}

		// A successful login promotes the connection's session.
		if verb == "login" && code.IsOK() {
			sess = promoteSession(sess, raw)
		}

		if !s.writeResponse(conn, verb, code, message) {
			return
		}
	}
}

func (s *Server) writeResponse(conn *websocket.Conn, verb string, code status.Code, message string) bool {
	resp := Response{Verb: verb, Status: int(code), Message: message}
	if err := conn.WriteJSON(resp); err != nil {
		s.logger.Warn("connection write failed", "error", err)
		return false
	}
	return true
}

// sessionKeys lists every attribute the gateway copies into the session.
var sessionKeys = append(
	[]string{session.KeyUserID, session.KeyUserName, session.KeyToken},
	session.ACLKeys()...,
)

// sessionFromQuery builds the initial session context from query parameters.
func sessionFromQuery(r *http.Request) *session.Context {
	values := map[string]string{}
	query := r.URL.Query()
	for _, key := range sessionKeys {
		if v := query.Get(key); v != "" {
			values[key] = v
		}
	}
	return session.New(values)
}

// promoteSession merges the login event's actor identity into the session.
func promoteSession(sess *session.Context, raw map[string]any) *session.Context {
	values := map[string]string{}
	for _, key := range sessionKeys {
		if v, ok := sess.Get(key); ok {
			values[key] = v
		}
	}

	if actor, ok := raw["actor"].(map[string]any); ok {
		if id, ok := actor["id"].(string); ok && id != "" {
			values[session.KeyUserID] = id
		}
		if encoded, ok := actor["displayName"].(string); ok && encoded != "" {
			if name, err := activity.B64Decode(encoded); err == nil {
				values[session.KeyUserName] = name
			}
		}
	}
	return session.New(values)
}
