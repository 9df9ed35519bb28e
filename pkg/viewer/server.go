// Package viewer serves the G-code interpreter over HTTP and a JSON-RPC 2.0
// websocket, so a browser front end can stream parsed toolpaths.
package viewer

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"gcodeview/pkg/config"
	"gcodeview/pkg/errors"
	"gcodeview/pkg/gcode"
	"gcodeview/pkg/log"
	"gcodeview/pkg/metrics"
	"gcodeview/pkg/slicer"
)

// Version is reported by server.info.
const Version = "0.3.0"

const (
	defaultBatchSize      = 1000
	defaultMaxUploadBytes = 512 << 20
)

// Config configures a Server.
type Config struct {
	Address        string
	BatchSize      int
	MaxUploadBytes int64

	// GCodeDir enables the file endpoints when set.
	GCodeDir     string
	HistoryLimit int

	// Profile returns the machine profile applied to every parse. Nil means
	// the defaults.
	Profile func() *config.MachineConfig

	Metrics         *metrics.ParseMetrics
	MetricsUsername string
	MetricsPassword string
}

// ConfigFromMachine fills the viewer settings of a machine profile.
func ConfigFromMachine(mc *config.MachineConfig) Config {
	return Config{
		Address:         mc.Viewer.Address,
		BatchSize:       mc.Viewer.BatchSize,
		MetricsUsername: mc.Viewer.MetricsUsername,
		MetricsPassword: mc.Viewer.MetricsPassword,
		Profile:         func() *config.MachineConfig { return mc },
	}
}

// Server is the viewer back end.
type Server struct {
	cfg     Config
	files   *FileStore
	history *History
	logger  *log.Logger

	upgrader  websocket.Upgrader
	clients   map[int64]*wsClient
	clientsMu sync.RWMutex
	nextID    int64

	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	running    atomic.Bool
	startTime  time.Time
}

// New creates a server. It fails only when the G-code directory cannot be
// created.
func New(cfg Config) (*Server, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchSize > maxBatchSize {
		cfg.BatchSize = maxBatchSize
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}

	s := &Server{
		cfg:       cfg,
		history:   NewHistory(cfg.HistoryLimit),
		logger:    log.GetLogger("viewer"),
		clients:   make(map[int64]*wsClient),
		startTime: time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	if cfg.GCodeDir != "" {
		files, err := NewFileStore(cfg.GCodeDir)
		if err != nil {
			return nil, err
		}
		s.files = files
	}
	return s, nil
}

// History returns the parse history.
func (s *Server) History() *History { return s.history }

func (s *Server) profile() *config.MachineConfig {
	if s.cfg.Profile != nil {
		if mc := s.cfg.Profile(); mc != nil {
			return mc
		}
	}
	return config.DefaultMachineConfig()
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/websocket", s.handleWebSocket)
	mux.HandleFunc("/server/info", s.handleServerInfo)
	mux.HandleFunc("/gcode/process", s.handleProcess)
	mux.HandleFunc("/server/history/list", s.handleHistoryList)
	mux.HandleFunc("/server/history/totals", s.handleHistoryTotals)
	if s.files != nil {
		mux.HandleFunc("/server/files/list", s.handleFileList)
		mux.HandleFunc("/server/files/upload", s.handleUpload)
		mux.HandleFunc("/server/files/", s.handleFile)
	}
	if s.cfg.Metrics != nil {
		mux.Handle("/metrics", metrics.BasicAuth(s.cfg.MetricsUsername, s.cfg.MetricsPassword,
			metrics.Handler(s.cfg.Metrics)))
	}
	return corsMiddleware(mux)
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return errors.Wrap(err, errors.ErrRuntime, "viewer listen")
	}

	s.mu.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.running.Store(true)
	s.logger.WithField("address", ln.Addr().String()).Info("viewer listening")

	if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, errors.ErrRuntime, "viewer serve")
	}
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Address
}

// Stop closes every websocket client and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.running.Store(false)

	s.clientsMu.Lock()
	for _, c := range s.clients {
		c.Close()
	}
	s.clients = make(map[int64]*wsClient)
	s.clientsMu.Unlock()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) serverInfo() map[string]any {
	mc := s.profile()
	kinds := slicer.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}

	s.clientsMu.RLock()
	wsCount := len(s.clients)
	s.clientsMu.RUnlock()

	return map[string]any{
		"version":         Version,
		"uptime":          time.Since(s.startTime).Seconds(),
		"websocket_count": wsCount,
		"slicers":         names,
		"batch_size":      s.cfg.BatchSize,
		"files_enabled":   s.files != nil,
		"machine": map[string]any{
			"cnc":          mc.CNC,
			"belt":         mc.Belt,
			"gantry_angle": mc.GantryAngle,
			"fix_radius":   mc.FixRadius,
			"arc_segment":  mc.ArcSegmentLength,
			"arc_plane":    mc.ArcPlane.String(),
			"slicer":       mc.Slicer,
		},
	}
}

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{"result": s.serverInfo()})
}

// handleProcess parses the request body, or a stored file named by
// ?filename= when the body is empty. ?records=false returns only the
// summary.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes))
	if err != nil {
		writeJSONError(w, errors.Wrap(err, errors.ErrLoader, "unable to read request body"),
			http.StatusRequestEntityTooLarge)
		return
	}

	q := r.URL.Query()
	req := parseRequest{Filename: q.Get("filename"), Content: body, Slicer: q.Get("slicer")}
	if len(body) == 0 && req.Filename != "" {
		content, release, err := s.openStored(req.Filename)
		if err != nil {
			writeJSONError(w, err, statusFor(err))
			return
		}
		defer release()
		req.Content = content
	}

	withRecords := true
	if v := q.Get("records"); v != "" {
		if withRecords, err = strconv.ParseBool(v); err != nil {
			writeJSONError(w, errors.Newf(errors.ErrGCodeParse, "bad records parameter %q", v), http.StatusBadRequest)
			return
		}
	}

	var envelopes []gcode.Envelope
	if withRecords {
		req.Sink = func(rec gcode.Record) error {
			envelopes = append(envelopes, gcode.Wrap(rec))
			return nil
		}
	} else {
		req.Sink = func(gcode.Record) error { return nil }
	}

	res, jobID, err := s.parse(r.Context(), req)
	if err != nil {
		writeJSONError(w, err, statusFor(err))
		return
	}

	result := map[string]any{
		"job_id":  jobID,
		"summary": res.Summary,
	}
	if withRecords {
		result["records"] = envelopes
	}
	writeJSON(w, map[string]any{"result": result})
}

// openStored loads a file from the store; release must be called when the
// content is no longer used.
func (s *Server) openStored(name string) ([]byte, func(), error) {
	if s.files == nil {
		return nil, nil, errors.New(errors.ErrLoader, "file storage is disabled")
	}
	f, err := s.files.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return f.Bytes(), func() { _ = f.Close() }, nil
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	start, _ := strconv.Atoi(q.Get("start"))
	writeJSON(w, map[string]any{"result": map[string]any{
		"count": s.history.Totals().TotalJobs,
		"jobs":  s.history.List(limit, start),
	}})
}

func (s *Server) handleHistoryTotals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"result": map[string]any{"job_totals": s.history.Totals()}})
}

func (s *Server) handleFileList(w http.ResponseWriter, r *http.Request) {
	files, err := s.files.List()
	if err != nil {
		writeJSONError(w, err, http.StatusInternalServerError)
		return
	}
	if files == nil {
		files = []FileInfo{}
	}
	writeJSON(w, map[string]any{"result": files})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSONError(w, err, http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, err, http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := r.FormValue("path")
	if name == "" {
		name = header.Filename
	}
	info, err := s.files.Save(name, file)
	if err != nil {
		writeJSONError(w, err, statusFor(err))
		return
	}
	writeJSON(w, map[string]any{"result": map[string]any{
		"item":   info,
		"action": "create_file",
	}})
}

// handleFile serves GET and DELETE on /server/files/{path}.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/server/files/")
	switch r.Method {
	case http.MethodGet:
		path, err := s.files.resolve(name)
		if err != nil {
			writeJSONError(w, err, http.StatusBadRequest)
			return
		}
		http.ServeFile(w, r, path)
	case http.MethodDelete:
		if err := s.files.Delete(name); err != nil {
			writeJSONError(w, err, statusFor(err))
			return
		}
		writeJSON(w, map[string]any{"result": map[string]any{
			"item":   map[string]any{"path": name},
			"action": "delete_file",
		}})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case stderrors.Is(err, context.Canceled):
		return 499
	case errors.Is(err, errors.ErrGCodeParse):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrLoader):
		if stderrors.Is(err, os.ErrNotExist) {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": err.Error(),
		},
	})
}
