// Package switchbus binds the message switch's contract (§6's "Inbound
// RPC") onto a concrete transport: one HTTP route per registered queue,
// carrying the JSON-RPC 1.0-style envelope described in §3. The switch's
// own connection/queue-binding/framing machinery is an external
// collaborator; this package only needs to look like one from the
// caller's side.
package switchbus

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/tylerb/graceful"

	"github.com/xapi-project/xapi-storage-script/rpcerror"
)

// Handler answers one inbound call already split into method and the
// single params object. Dispatcher.Dispatch satisfies this.
type Handler func(ctx context.Context, method string, params json.RawMessage) (interface{}, *rpcerror.Error)

// call is the inbound JSON-RPC 1.0-style envelope, per §3: {method,
// params: [<one object>]}.
type call struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type successEnvelope struct {
	Result interface{} `json:"result"`
}

type errorEnvelope struct {
	Error *rpcerror.Error `json:"error"`
}

// Switch owns the set of currently-registered per-plugin-name queues and
// serves them over one graceful HTTP listener. Queue registration and
// unregistration is driven exclusively by the Plugin Watcher (§4.7); the
// Switch itself never binds or unbinds a queue on its own.
type Switch struct {
	mu      sync.RWMutex
	router  *mux.Router
	queues  map[string]Handler
	server  *graceful.Server
	timeout time.Duration
}

// New builds a Switch that will listen on addr once Run is called.
func New(addr string) *Switch {
	s := &Switch{
		router: mux.NewRouter(),
		queues: make(map[string]Handler),
	}
	s.router.HandleFunc("/rpc/{queue}", s.serveRPC).Methods(http.MethodPost)
	s.server = &graceful.Server{
		Timeout: 5 * time.Second,
		Server: &http.Server{
			Addr:    addr,
			Handler: s.router,
		},
	}
	return s
}

// Bind registers a handler on queue <name>, per the Plugin Watcher's
// "register(name) binds a new RPC service on queue basename(name)".
func (s *Switch) Bind(name string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[name] = handler
}

// Unbind tears down the service previously bound to name.
func (s *Switch) Unbind(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queues, name)
}

// Bound reports whether name currently has a service registered.
func (s *Switch) Bound(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.queues[name]
	return ok
}

func (s *Switch) lookup(name string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.queues[name]
	return h, ok
}

func (s *Switch) serveRPC(w http.ResponseWriter, r *http.Request) {
	queue := mux.Vars(r)["queue"]
	handler, ok := s.lookup(queue)
	if !ok {
		writeError(w, rpcerror.New(rpcerror.ScriptMissing, queue))
		return
	}

	var c call
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, rpcerror.ScriptFailedErr("decoding request envelope: "+err.Error()))
		return
	}

	var params json.RawMessage
	if len(c.Params) > 0 {
		params = c.Params[0]
	}

	result, rpcErr := handler(r.Context(), c.Method, params)
	if rpcErr != nil {
		log.WithFields(log.Fields{
			"queue":  queue,
			"method": c.Method,
			"code":   rpcErr.Code,
		}).Debug("rpc call failed")
		writeError(w, rpcErr)
		return
	}

	writeResult(w, result)
}

func writeResult(w http.ResponseWriter, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(successEnvelope{Result: result})
}

func writeError(w http.ResponseWriter, err *rpcerror.Error) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: err})
}

// DefaultShutdownTimeout bounds how long Shutdown waits for in-flight
// requests to drain before the listener is forced closed.
const DefaultShutdownTimeout = 5 * time.Second

// ServeHTTP lets a Switch be exercised directly against an
// httptest.ResponseRecorder without a real listener.
func (s *Switch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run starts serving. It blocks until the listener stops.
func (s *Switch) Run() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests and stops the listener.
func (s *Switch) Shutdown(timeout time.Duration) {
	s.server.Stop(timeout)
	<-s.server.StopChan()
}
