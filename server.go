package pushserver

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

const (
	defaultKeepalive    = 15 * time.Second
	defaultSessionParam = "pushSessionId"
	maxPublishBodySize  = 1 << 20
)

// Server exposes a PushContext over HTTP.
//
//	GET  /subscribe/{topic}   SSE stream for one session subscribed to topic
//	POST /publish/{topic}     publish the request body to topic
//
// Topics are addressed as "name" or "subtopic@name". A subscriber passes its
// session id in the pushSessionId query parameter; without one a fresh id is
// generated and announced as the first event, named "session".
//
// Server implements the http.Handler interface, and can be chained into
// existing HTTP routing muxes if desired.
type Server struct {
	push   *PushContext
	router *mux.Router
	log    *slog.Logger

	conf serverConfig

	mu          sync.Mutex
	connections map[*connection]struct{}
	closed      bool
	quit        chan struct{}
	active      sync.WaitGroup
}

// serverConfig defines configurable options that can be customized for a Server.
type serverConfig struct {
	CORSAllowOrigin  string        // Access-Control-Allow-Origin header value (dont send header if blank)
	Keepalive        time.Duration // interval between keepalive comments (<=0 disables them)
	SessionParam     string        // query parameter carrying the session id
	AutoCreateTopics bool          // create unknown topics on subscribe instead of 404
}

// NewServer creates a new Server for p with optional ServerOptions for
// configuration.
func NewServer(p *PushContext, opts ...ServerOption) (*Server, error) {
	if p == nil {
		return nil, errors.New("pushserver: nil PushContext")
	}
	s := &Server{
		push:        p,
		log:         p.log,
		connections: make(map[*connection]struct{}),
		quit:        make(chan struct{}),
		conf: serverConfig{
			Keepalive:    defaultKeepalive,
			SessionParam: defaultSessionParam,
		},
	}

	// set configuration from provided options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	r := mux.NewRouter()
	r.HandleFunc("/subscribe/{topic}", s.subscribeHandler).Methods(http.MethodGet)
	r.HandleFunc("/publish/{topic}", s.publishHandler).Methods(http.MethodPost)
	s.router = r
	return s, nil
}

// ServerOption defines a set of high-level user options that can be customized
type ServerOption func(s *Server) error

// WithCORSAllowOrigin sets the Access-Control-Allow-Origin header value to origin.
// If set to the zero value (""), the header will not be sent.
//
// If you want to allow connections from browsers at any origin, set to "*".
//
// See https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/Access-Control-Allow-Origin.
func WithCORSAllowOrigin(origin string) ServerOption {
	return func(s *Server) error {
		s.conf.CORSAllowOrigin = origin
		return nil
	}
}

// WithKeepalive sets the interval between SSE keepalive comments. Zero
// disables keepalives.
func WithKeepalive(d time.Duration) ServerOption {
	return func(s *Server) error {
		s.conf.Keepalive = d
		return nil
	}
}

// WithSessionParam changes the query parameter subscribers use to pass their
// session id.
func WithSessionParam(name string) ServerOption {
	return func(s *Server) error {
		if name == "" {
			return errors.New("pushserver: empty session parameter name")
		}
		s.conf.SessionParam = name
		return nil
	}
}

// WithAutoCreateTopics makes subscribing to an unknown topic create it rather
// than fail with 404.
func WithAutoCreateTopics(enabled bool) ServerOption {
	return func(s *Server) error {
		s.conf.AutoCreateTopics = enabled
		return nil
	}
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) subscribeHandler(w http.ResponseWriter, r *http.Request) {
	key, err := ParseTopicKey(mux.Vars(r)["topic"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	topics := s.push.TopicsContext()
	if _, ok := topics.Topic(key); !ok {
		if !s.conf.AutoCreateTopics {
			http.Error(w, "unknown topic", http.StatusNotFound)
			return
		}
		topics.GetOrCreateTopic(key)
	}

	sessionID := r.URL.Query().Get(s.conf.SessionParam)
	announce := sessionID == ""
	if announce {
		sessionID = s.push.SessionManager().NewSessionID()
	}
	if err := s.push.Subscribe(sessionID, key); err != nil {
		// topic removed between the check and the subscribe
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	// override RemoteAddr to trust proxy IP msgs if they exist
	// pattern taken from http://git.io/xDD3Mw
	ip := r.Header.Get("X-Real-IP")
	if ip == "" {
		ip = r.Header.Get("X-Forwarded-For")
	}
	if ip != "" {
		r.RemoteAddr = ip
	}

	c := newConnection(w, r, sessionID, key, s.conf.Keepalive)
	if !s.register(c) {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.active.Done()

	headers := w.Header()
	if s.conf.CORSAllowOrigin != "" {
		headers.Set("Access-Control-Allow-Origin", s.conf.CORSAllowOrigin)
	}
	headers.Set("Content-Type", "text/event-stream; charset=utf-8")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := c.write(nil); err != nil {
		s.unregister(c)
		return
	}

	if announce {
		hello := Message{Event: "session", Data: []byte(sessionID)}
		if _, err := c.Push(r.Context(), []Message{hello}); err != nil {
			s.unregister(c)
			return
		}
	}

	s.log.Info("connect",
		slog.String("topic", key.String()),
		slog.String("session", sessionID),
		slog.String("client", r.RemoteAddr))

	s.push.OnConnectionOpen(sessionID, c)
	defer func() {
		s.unregister(c)
		s.push.DeliveryCoordinator().detach(sessionID, c)
		s.log.Info("disconnect",
			slog.String("topic", key.String()),
			slog.String("session", sessionID),
			slog.String("client", r.RemoteAddr))
	}()

	c.writer(s.quit)
}

func (s *Server) publishHandler(w http.ResponseWriter, r *http.Request) {
	key, err := ParseTopicKey(mux.Vars(r)["topic"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPublishBodySize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	msg := Message{Topic: key, Event: r.URL.Query().Get("event"), Data: body}
	switch err := s.push.TopicsContext().PublishMessage(msg); {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, ErrUnknownTopic):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// register tracks c and reserves a slot in the active handler group. It
// reports false once Shutdown has begun.
func (s *Server) register(c *connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.connections[c] = struct{}{}
	s.active.Add(1)
	return true
}

func (s *Server) unregister(c *connection) {
	c.close()
	s.mu.Lock()
	delete(s.connections, c)
	s.mu.Unlock()
}

// Shutdown a server gracefully, closing active connections and waiting for
// their handlers to return. New subscribers are refused with 503.
//
// The PushContext is not shut down; queued messages stay with their sessions.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.quit)
	}
	s.mu.Unlock()
	s.active.Wait()
}

// ServerStatus is a snapshot of the PushContext status plus the connections
// currently open on this Server.
type ServerStatus struct {
	ReportingStatus
	Connections []ConnectionStatus `json:"connections"`
}

// Status returns a snapshot of status metadata for the Server.
//
// Primarily intended for logging and reporting.
func (s *Server) Status() ServerStatus {
	s.mu.Lock()
	cl := make([]ConnectionStatus, 0, len(s.connections))
	for c := range s.connections {
		cl = append(cl, c.Status())
	}
	s.mu.Unlock()
	// sort by age of connection
	sort.Slice(cl, func(i, j int) bool {
		return cl[i].Created < cl[j].Created
	})

	return ServerStatus{
		ReportingStatus: s.push.Status(),
		Connections:     cl,
	}
}

// PushContext returns the PushContext the Server publishes through.
func (s *Server) PushContext() *PushContext {
	return s.push
}
