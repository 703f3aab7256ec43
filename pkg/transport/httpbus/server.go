// Package httpbus carries the transport over HTTP.
//
// The coordinator serves two handlers, usually on two ports:
//
//	unicast:  POST /messages        client → coordinator
//	          GET  /messages        long poll for coordinator → client
//	publish:  GET  /topics/{offset} long poll for the offset-th broadcast
//
// Clients identify themselves with the X-Identity header. Bodies are cbor
// encoded frames.
package httpbus

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/taurusgroup/secagg/internal/phase"
	"github.com/taurusgroup/secagg/pkg/party"
	"github.com/taurusgroup/secagg/pkg/transport"
	"github.com/taurusgroup/secagg/pkg/transport/memory"
)

const (
	identityHeader = "X-Identity"
	contentType    = "application/cbor"
	maxBodyBytes   = 64 << 20
)

// broadcast is the wire form of transport.Broadcast.
type broadcast struct {
	Topic  string   `cbor:"1,keyasint"`
	Frames [][]byte `cbor:"2,keyasint"`
}

// Server implements transport.Router and transport.Publisher on top of an
// in-memory bus, and exposes it over HTTP.
type Server struct {
	bus  *memory.Bus
	wait time.Duration

	Log zerolog.Logger
}

// NewServer returns a server whose long polls last at most wait.
func NewServer(wait time.Duration) *Server {
	return &Server{
		bus:  memory.NewBus(),
		wait: wait,
		Log:  zerolog.Nop(),
	}
}

// Recv implements transport.Router.
func (s *Server) Recv(ctx context.Context) (transport.Envelope, error) {
	return s.bus.Recv(ctx)
}

// Send implements transport.Router.
func (s *Server) Send(ctx context.Context, to party.ID, frames transport.Frames) error {
	return s.bus.Send(ctx, to, frames)
}

// Publish implements transport.Publisher.
func (s *Server) Publish(ctx context.Context, topic phase.Topic, frames transport.Frames) error {
	return s.bus.Publish(ctx, topic, frames)
}

// Close ends every pending long poll.
func (s *Server) Close() {
	s.bus.Close()
}

// UnicastRoutes registers the request/response endpoints.
func (s *Server) UnicastRoutes(r chi.Router) {
	r.Use(middleware.Recoverer)

	r.Post("/messages", s.handleSend)
	r.Get("/messages", s.handleRecv)
}

// PublishRoutes registers the broadcast endpoint.
func (s *Server) PublishRoutes(r chi.Router) {
	r.Use(middleware.Recoverer)

	r.Get("/topics/{offset}", s.handleTopic)
}

// UnicastHandler returns a router serving UnicastRoutes.
func (s *Server) UnicastHandler() http.Handler {
	r := chi.NewRouter()
	s.UnicastRoutes(r)
	return r
}

// PublishHandler returns a router serving PublishRoutes.
func (s *Server) PublishHandler() http.Handler {
	r := chi.NewRouter()
	s.PublishRoutes(r)
	return r
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	id := party.ID(r.Header.Get(identityHeader))
	if id == "" {
		http.Error(w, "missing identity", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var frames [][]byte
	if err = cbor.Unmarshal(body, &frames); err != nil {
		http.Error(w, "invalid frames", http.StatusBadRequest)
		return
	}
	if err = s.bus.Connect(id).Send(r.Context(), frames); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.Log.Debug().Str("from", string(id)).Int("frames", len(frames)).Msg("received")
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRecv(w http.ResponseWriter, r *http.Request) {
	id := party.ID(r.Header.Get(identityHeader))
	if id == "" {
		http.Error(w, "missing identity", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.wait)
	defer cancel()
	frames, err := s.bus.Connect(id).Recv(ctx)
	s.write(w, frames, err)
}

func (s *Server) handleTopic(w http.ResponseWriter, r *http.Request) {
	offset, err := strconv.Atoi(chi.URLParam(r, "offset"))
	if err != nil || offset < 0 {
		http.Error(w, "invalid offset", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.wait)
	defer cancel()
	msg, err := s.bus.Broadcast(ctx, offset)
	s.write(w, broadcast{Topic: string(msg.Topic), Frames: msg.Frames}, err)
}

func (s *Server) write(w http.ResponseWriter, v interface{}, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, transport.ErrClosed):
		http.Error(w, err.Error(), http.StatusGone)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data, err := cbor.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	if _, err = w.Write(data); err != nil {
		s.Log.Warn().Err(err).Msg("failed to write response")
	}
}
