// Package web provides the HTTP status page, JSON API and mode commands.
package web

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/sweeney/hrv-controller/internal/controller"
	"github.com/sweeney/hrv-controller/internal/inputs"
	"github.com/sweeney/hrv-controller/internal/mqtt"
	"github.com/sweeney/hrv-controller/internal/status"
)

// Commander applies operator commands.
type Commander interface {
	Submit(ctx context.Context, cmd controller.Command) error
}

// InputLister lists the raw inputs.
type InputLister interface {
	Entries() []inputs.Entry
}

// commandTimeout bounds how long a request waits for the control loop.
const commandTimeout = 5 * time.Second

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	inputs     InputLister
	commands   Commander
	logger     *zap.Logger
}

// New creates a Server. inputs and commands may be nil, which disables the
// matching endpoints.
func New(addr string, tracker *status.Tracker, in InputLister, cmd Commander, logger *zap.Logger) *Server {
	s := &Server{tracker: tracker, inputs: in, commands: cmd, logger: logger}

	router := httprouter.New()
	router.GET("/", s.handleIndex)
	router.GET("/index.html", s.handleIndex)
	router.GET("/index.json", s.handleJSON)
	router.GET("/api/inputs", s.handleInputs)
	router.POST("/api/modes/:mode", s.handleMode)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(router, "web"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, s.tracker.Snapshot()); err != nil {
		s.logger.Warn("render status page", zap.Error(err))
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

func (s *Server) handleInputs(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.inputs == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, formatInputs(s.inputs.Entries()))
}

// modeCommands are the commands reachable over HTTP.
var modeCommands = map[string]bool{
	mqtt.CommandManualMode:          true,
	mqtt.CommandTemporaryManualMode: true,
	mqtt.CommandTemporaryBoostMode:  true,
	mqtt.CommandManualPower:         true,
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	mode := ps.ByName("mode")
	if s.commands == nil || !modeCommands[mode] {
		writeJSON(w, http.StatusNotFound, commandResponse{Command: mode, Error: "unknown command"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 64))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, commandResponse{Command: mode, Error: err.Error()})
		return
	}
	payload := strings.TrimSpace(string(body))

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	err = s.commands.Submit(ctx, controller.Command{Name: mode, Payload: payload})

	switch {
	case err == nil:
		s.logger.Info("mode command accepted", zap.String("command", mode), zap.String("payload", payload))
		writeJSON(w, http.StatusOK, commandResponse{Command: mode, Payload: payload, OK: true})
	case errors.Is(err, controller.ErrInvalidPayload):
		writeJSON(w, http.StatusBadRequest, commandResponse{Command: mode, Payload: payload, Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, controller.ErrBusy):
		writeJSON(w, http.StatusServiceUnavailable, commandResponse{Command: mode, Payload: payload, Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, commandResponse{Command: mode, Payload: payload, Error: err.Error()})
	}
}
