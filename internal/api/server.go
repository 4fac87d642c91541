// Package api serves the daemon's observability surface: a small Huma
// status API plus the Prometheus exposition endpoint.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/webcamd/internal/logging"
	"github.com/smazurov/webcamd/internal/version"
)

// StatusProvider supplies the current streaming snapshot. Implemented by
// the service layer.
type StatusProvider interface {
	Status() Status
}

// Status is the daemon's externally visible state.
type Status struct {
	Device        string  `json:"device" example:"/dev/video2" doc:"Gadget node the daemon is driving"`
	HostConnected bool    `json:"host_connected" doc:"Whether a USB host is attached"`
	Streaming     bool    `json:"streaming" doc:"Whether frames are being transmitted"`
	Format        string  `json:"format,omitempty" example:"MJPG" doc:"Negotiated pixel format"`
	Width         uint32  `json:"width,omitempty" example:"1920"`
	Height        uint32  `json:"height,omitempty" example:"1080"`
	FPS           float64 `json:"fps,omitempty" example:"30"`
	FramesDropped uint64  `json:"frames_dropped" doc:"Camera frames dropped since startup"`
}

// Options configures the API server.
type Options struct {
	// Status answers GET /api/status; required.
	Status StatusProvider

	// PrometheusHandler, when set, is mounted at GET /metrics.
	PrometheusHandler http.Handler
}

// Server is the HTTP server for the status API.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	status     StatusProvider
	log        *slog.Logger
}

type statusResponse struct {
	Body Status
}

type healthResponse struct {
	Body struct {
		Status string `json:"status" example:"ok"`
	}
}

type versionResponse struct {
	Body version.Info
}

// NewServer builds the server and registers its routes.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	config := huma.DefaultConfig("webcamd API", version.String())
	config.Info.Description = "Status API for the UVC gadget webcam daemon"
	config.Servers = []*huma.Server{}

	s := &Server{
		api:    humago.New(mux, config),
		mux:    mux,
		status: opts.Status,
		log:    logging.GetLogger("api"),
	}
	s.api.UseMiddleware(loggingMiddleware)

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}
	s.registerRoutes()
	return s
}

// Mux returns the underlying mux, mainly for tests.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// Start serves HTTP on addr until Stop is called. Blocks.
func (s *Server) Start(addr string) error {
	s.log.Info("API server listening", "addr", addr)
	s.httpServer = &http.Server{Addr: addr, Handler: s.mux}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down without waiting for open connections.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("API server stopping")
	return s.httpServer.Close()
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Tags:        []string{"system"},
	}, func(ctx context.Context, input *struct{}) (*healthResponse, error) {
		resp := &healthResponse{}
		resp.Body.Status = "ok"
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Tags:        []string{"system"},
	}, func(ctx context.Context, input *struct{}) (*versionResponse, error) {
		return &versionResponse{Body: version.Get()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Streaming status",
		Description: "Current gadget node, negotiated format, and frame counters",
		Tags:        []string{"status"},
	}, func(ctx context.Context, input *struct{}) (*statusResponse, error) {
		return &statusResponse{Body: s.status.Status()}, nil
	})
}
