package facade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/vikashloomba/mcp-dashboard-go/pkg/invoke"
	"github.com/vikashloomba/mcp-dashboard-go/pkg/mcpmgr"
)

const defaultMaxBodyBytes = 1 << 20

// Invoker performs one invocation and reports it as an envelope.
// *invoke.Invoker implements it.
type Invoker interface {
	Do(ctx context.Context, req invoke.Request) invoke.Envelope
}

// Snapshotter reports the registered servers without touching the network.
// *mcpmgr.Manager implements it.
type Snapshotter interface {
	Snapshot() []mcpmgr.ServerSummary
}

// Options configures a Server.
type Options struct {
	// AllowedOrigins enables CORS for the listed origins. Empty disables CORS
	// handling entirely.
	AllowedOrigins []string
	// Actions are the configured per-server shortcuts.
	Actions Actions
	// Logger receives request logs. Defaults to a no-op logger.
	Logger *zap.Logger
	// MaxBodyBytes caps request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Actions == nil {
		opts.Actions = Actions{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	return opts
}

// Server is the dashboard's HTTP API.
type Server struct {
	invoker Invoker
	servers Snapshotter
	opts    Options
	logger  *zap.Logger

	mux     *http.ServeMux
	handler http.Handler
}

// New builds the API handler.
func New(inv Invoker, servers Snapshotter, opts *Options) *Server {
	options := opts.withDefaults()
	s := &Server{
		invoker: inv,
		servers: servers,
		opts:    options,
		logger:  options.Logger.Named("facade"),
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/mcp", s.handleList)
	s.mux.HandleFunc("GET /api/mcp/{serverId}", s.handleQuery)
	s.mux.HandleFunc("POST /api/mcp/{serverId}", s.handleInvoke)
	s.mux.HandleFunc("POST /api/mcp/{serverId}/actions/{action}", s.handleAction)

	var h http.Handler = s.mux
	if len(options.AllowedOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: options.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
		}).Handler(h)
	}
	s.handler = chain(h, withRecovery(s.logger), withLogging(s.logger), withRequestID())
	return s
}

// Handle mounts an additional handler, such as the MCP gateway, behind the
// same middleware.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	s.writeEnvelope(w, invoke.Succeed(s.servers.Snapshot(), time.Since(start)))
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	if action == "" {
		action = string(invoke.OpStatus)
	}
	op, ok := invoke.ParseOp(action)
	if !ok || (op != invoke.OpStatus && op != invoke.OpTools && op != invoke.OpPrompts) {
		s.writeEnvelope(w, invoke.Fail(fmt.Errorf("%w %q for GET", ErrUnknownAction, action), 0))
		return
	}
	s.do(w, r, invoke.Request{Op: op, ServerID: r.PathValue("serverId")})
}

type invokeBody struct {
	ToolName   string         `json:"toolName"`
	PromptName string         `json:"promptName"`
	Arguments  map[string]any `json:"arguments"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var body invokeBody
	if err := s.decodeBody(w, r, &body); err != nil {
		s.writeEnvelope(w, invoke.Fail(err, 0))
		return
	}
	action := r.URL.Query().Get("action")
	var op invoke.Op
	switch {
	case action != "":
		parsed, ok := invoke.ParseOp(action)
		if !ok || (parsed != invoke.OpCallTool && parsed != invoke.OpGetPrompt) {
			s.writeEnvelope(w, invoke.Fail(fmt.Errorf("%w %q for POST", ErrUnknownAction, action), 0))
			return
		}
		op = parsed
	case body.PromptName != "":
		op = invoke.OpGetPrompt
	default:
		op = invoke.OpCallTool
	}
	name := body.ToolName
	if op == invoke.OpGetPrompt {
		name = body.PromptName
	}
	s.do(w, r, invoke.Request{Op: op, ServerID: r.PathValue("serverId"), Name: name, Arguments: body.Arguments})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	serverID := r.PathValue("serverId")
	action, err := s.opts.Actions.Lookup(serverID, r.PathValue("action"))
	if err != nil {
		s.writeEnvelope(w, invoke.Fail(err, 0))
		return
	}
	var body invokeBody
	if err := s.decodeBody(w, r, &body); err != nil {
		s.writeEnvelope(w, invoke.Fail(err, 0))
		return
	}
	s.do(w, r, invoke.Request{
		Op:        invoke.OpCallTool,
		ServerID:  serverID,
		Name:      action.Tool,
		Arguments: action.Arguments(body.Arguments),
	})
}

func (s *Server) do(w http.ResponseWriter, r *http.Request, req invoke.Request) {
	req.ID = requestIDFrom(r.Context())
	s.writeEnvelope(w, s.invoker.Do(r.Context(), req))
}

// decodeBody accepts an empty body as the zero value.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed body: %v", invoke.ErrInvalidRequest, err)
	}
	return nil
}

func (s *Server) writeEnvelope(w http.ResponseWriter, env invoke.Envelope) {
	writeJSON(w, StatusFor(env), env)
}

// StatusFor maps an envelope onto the HTTP status the API reports for it.
func StatusFor(env invoke.Envelope) int {
	if env.Success {
		return http.StatusOK
	}
	err := env.Err()
	switch {
	case errors.Is(err, invoke.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownAction):
		return http.StatusNotFound
	}
	switch env.Kind {
	case mcpmgr.KindConfigNotFound:
		return http.StatusNotFound
	case mcpmgr.KindConnection:
		return http.StatusBadGateway
	case mcpmgr.KindTransportBroken:
		return http.StatusServiceUnavailable
	case mcpmgr.KindRemote:
		return http.StatusUnprocessableEntity
	case mcpmgr.KindCanceled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
