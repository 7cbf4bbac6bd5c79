package http

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"receipts/internal/export"
	applog "receipts/internal/log"
	"receipts/internal/middleware/ratelimit"
	"receipts/internal/middleware/trace"
	"receipts/internal/services"
	appweb "receipts/web"
)

// Deps are the services behind the dashboard.
type Deps struct {
	Batches    *services.Batches
	Reconciler *services.Reconciler
	History    *services.History
	Exporter   *export.Service
	// Ready reports whether the backing stores are reachable. Nil means
	// always ready.
	Ready func(ctx context.Context) error
}

type Options struct {
	MaxUploadBytes int64
	RateLimit      ratelimit.Config
	Logger         *slog.Logger
	// Now is the clock used for default periods.
	Now func() time.Time
}

type Server struct {
	http.Server
	templates  *template.Template
	batches    *services.Batches
	reconciler *services.Reconciler
	history    *services.History
	exporter   *export.Service
	ready      func(ctx context.Context) error

	limiter   *ratelimit.Limiter
	maxUpload int64
	logger    *slog.Logger
	now       func() time.Time
	started   time.Time

	shutdownOnce sync.Once
}

var templateFuncs = template.FuncMap{
	"amount":    formatAmount,
	"monthName": monthName,
	"updatedAt": formatUpdatedAt,
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	logger := applog.WithComponent(applog.ComponentHTTP)
	if opts.Logger != nil {
		logger = opts.Logger.With(applog.FieldComponent, applog.ComponentHTTP)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		batches:    deps.Batches,
		reconciler: deps.Reconciler,
		history:    deps.History,
		exporter:   deps.Exporter,
		ready:      deps.Ready,
		limiter:    ratelimit.NewLimiter(opts.RateLimit),
		maxUpload:  opts.MaxUploadBytes,
		logger:     logger,
		now:        now,
		started:    time.Now(),
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	mux.HandleFunc("/periods/replace", s.handleReplacePeriod)
	mux.HandleFunc("/periods/receipts", s.handleAddReceipts)
	mux.HandleFunc("/periods/recalculate", s.handleRecalculate)
	mux.HandleFunc("/receipts/delete", s.handleDeleteReceipt)
	mux.HandleFunc("/receipts/image", s.handleReceiptImage)

	mux.HandleFunc("/ui/month", s.handleMonth)
	mux.HandleFunc("/ui/year", s.handleYear)
	mux.HandleFunc("/export/year.xlsx", s.handleExportYear)

	tracer := trace.NewMiddleware(logger, extractClientIP)
	limit := s.limiter.Middleware(extractClientIP, http.MethodPost)
	s.Server = http.Server{
		Addr:              addr,
		Handler:           tracer.Handler(withSecurityHeaders(limit(mux))),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// render executes a template, logging failures against the request.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded", applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldOperation, applog.OpRender,
			"template", name,
			applog.FieldError, err)
	}
}

// renderString executes a template into a string for builder responses.
func (s *Server) renderString(name string, data any) (string, error) {
	if s.templates == nil {
		return "", fmt.Errorf("templates not loaded")
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
