// Package server serves patch logs over HTTP.
//
// Every route lives under /$/ and speaks msgpack. Reads are open to
// anyone. Creating and removing datasets and appending patches need a
// client registered with POST /$/register, identified by the
// Delta-Client header on each request. Each registered client gets its
// own link.Local, so registration state is per client.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/signadot/deltalog/system/deltad/api"
	"github.com/signadot/deltalog/system/deltad/link"
)

// maxPatchSize bounds request bodies.
const maxPatchSize = 64 << 20

// Server represents the patch log server.
type Server struct {
	Spec Spec

	// reads go through an unregistered link
	reader *link.Local
	// mutations by unidentified clients when registration is not required
	anon *link.Local

	mu      sync.Mutex
	clients map[api.Id]*link.Local

	mux *http.ServeMux
}

// New creates a new Server instance. spec.Registry is required.
func New(spec *Spec) *Server {
	if spec.Log == nil {
		spec.Log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slogLevel(),
		}))
	}
	if spec.Config == nil {
		spec.Config = DefaultConfig()
	}
	s := &Server{
		Spec:    *spec,
		reader:  link.NewLocal(spec.Registry, spec.Log),
		clients: map[api.Id]*link.Local{},
		mux:     http.NewServeMux(),
	}
	s.Spec.Log = spec.Log.With("component", "server")
	if !spec.Config.requireRegistration() {
		s.anon = link.NewLocal(spec.Registry, spec.Log)
		s.anon.Register(context.Background(), api.NewId())
	}
	s.routes()
	return s
}

func slogLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /$/ping", s.handlePing)
	s.mux.HandleFunc("POST /$/register", s.handleRegister)
	s.mux.HandleFunc("POST /$/deregister", s.handleDeregister)
	s.mux.HandleFunc("GET /$/datasets", s.handleList)
	s.mux.HandleFunc("POST /$/datasets", s.handleCreate)
	s.mux.HandleFunc("GET /$/describe", s.handleDescribeURI)
	s.mux.HandleFunc("GET /$/datasets/{id}", s.handleDescribe)
	s.mux.HandleFunc("DELETE /$/datasets/{id}", s.handleRemove)
	s.mux.HandleFunc("GET /$/datasets/{id}/version", s.handleVersion)
	s.mux.HandleFunc("GET /$/datasets/{id}/patch/{ref}", s.handleFetch)
	s.mux.HandleFunc("POST /$/datasets/{id}/patch", s.handleAppend)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Spec.Log.Debug("request", "method", r.Method, "path", r.URL.Path)
	s.mux.ServeHTTP(w, r)
}

// linkFor returns the link of the client that sent r.
func (s *Server) linkFor(r *http.Request) (*link.Local, error) {
	h := r.Header.Get(api.ClientHeader)
	if h == "" {
		if s.anon != nil {
			return s.anon, nil
		}
		return nil, api.NewError(api.ErrCodeNotConnected, "missing "+api.ClientHeader+" header")
	}
	id, err := api.ParseId(h)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.clients[id]
	if !ok {
		return nil, api.Errorf(api.ErrCodeNotConnected, "client %s not registered", id)
	}
	return l, nil
}

func (s *Server) register(ctx context.Context, client api.Id) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client]; ok {
		return nil
	}
	l := link.NewLocal(s.Spec.Registry, s.Spec.Log)
	if err := l.Register(ctx, client); err != nil {
		return err
	}
	s.clients[client] = l
	s.Spec.Log.Info("registered client", "client", client.Short())
	return nil
}

func (s *Server) deregister(ctx context.Context, client api.Id) {
	s.mu.Lock()
	l, ok := s.clients[client]
	delete(s.clients, client)
	s.mu.Unlock()
	if ok {
		l.Close()
		s.Spec.Log.Info("deregistered client", "client", client.Short())
	}
}

// Close closes every client link. The registry is left open.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, l := range s.clients {
		l.Close()
		delete(s.clients, id)
	}
	if s.anon != nil {
		s.anon.Close()
	}
	return s.reader.Close()
}
