package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-style/internal/api"
	"github.com/joeblew999/plat-style/internal/cache"
	"github.com/joeblew999/plat-style/internal/extent"
	"github.com/joeblew999/plat-style/internal/fetch"
	"github.com/joeblew999/plat-style/internal/logger"
	"github.com/joeblew999/plat-style/internal/metrics"
	"github.com/joeblew999/plat-style/internal/pipeline"
	"github.com/joeblew999/plat-style/internal/service"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	Version string

	// CatalogFile is a YAML or JSON example catalog; empty uses the built-in one.
	CatalogFile string
	// DataDir is served under DataPrefix and listed by /api/v1/sources.
	DataDir    string
	DataPrefix string
	// BaseURL resolves relative layer URLs. Empty means this server.
	BaseURL string

	LogLevel   string
	LogConsole bool

	FetchTimeout time.Duration
	LayerTimeout time.Duration
	Concurrency  int
	CacheSize    int
	CacheTTL     time.Duration
	LoadingGrace time.Duration
}

// DisplayURL is the base URL for humans and for resolving relative paths.
func (c Config) DisplayURL() string {
	host := c.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%s", host, c.Port)
}

// Server is the geostyle HTTP server.
type Server struct {
	config   Config
	router   chi.Router
	humaAPI  huma.API
	log      zerolog.Logger
	metrics  *metrics.Provider
	services *api.Services
}

// New creates a new server and every service behind it.
func New(cfg Config) (*Server, error) {
	if cfg.DataPrefix == "" {
		cfg.DataPrefix = "/data"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = cfg.DisplayURL()
	}
	if cfg.LoadingGrace <= 0 {
		cfg.LoadingGrace = service.DefaultGrace
	}

	log := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "geostyle",
	}, os.Stderr)
	mp := metrics.Init(cfg.Version)

	services, err := NewServices(cfg, log, mp.Pipeline)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	humaConfig := huma.DefaultConfig("plat-style API", cfg.Version)
	humaConfig.Info.Description = "Map layer styling API: extents, style variables, examples and layer state."
	humaConfig.Servers = []*huma.Server{
		{URL: cfg.DisplayURL(), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	s := &Server{
		config:   cfg,
		router:   r,
		humaAPI:  humachi.New(r, humaConfig),
		log:      log,
		metrics:  mp,
		services: services,
	}
	s.routes()
	return s, nil
}

// NewServices wires the fetcher, calculators, pipeline and state manager.
// The CLI subcommands use it without an HTTP server.
func NewServices(cfg Config, log zerolog.Logger, m *metrics.Pipeline) (*api.Services, error) {
	fetcher, err := fetch.NewHTTP(fetch.Options{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.FetchTimeout,
	})
	if err != nil {
		return nil, err
	}

	calcs := pipeline.NewCalculators(extent.Options{
		Fetcher: fetcher,
		Cache:   cache.Config{Size: cfg.CacheSize, TTL: cfg.CacheTTL},
		Logger:  log.With().Str("component", "extent").Logger(),
		Metrics: m,
	})
	plog := log.With().Str("component", "pipeline").Logger()
	proc := pipeline.NewProcessor(
		pipeline.DefaultRegistry(calcs, plog),
		pipeline.Options{Concurrency: cfg.Concurrency, LayerTimeout: cfg.LayerTimeout},
		plog,
		m,
	)

	catalog, err := service.NewCatalogService(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	var data *service.DataService
	if cfg.DataDir != "" {
		data = service.NewDataService(cfg.DataDir, cfg.DataPrefix)
	}

	state := service.NewStateService(proc, service.NewBus[service.Event](), cfg.LoadingGrace,
		log.With().Str("component", "state").Logger())

	return &api.Services{
		State:     state,
		Catalog:   catalog,
		Data:      data,
		Processor: proc,
		Calcs:     calcs,
		Fetcher:   fetcher,
		Log:       log,
		Version:   cfg.Version,
	}, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Services exposes the wired services.
func (s *Server) Services() *api.Services {
	return s.services
}

// Logger returns the server's root logger.
func (s *Server) Logger() zerolog.Logger {
	return s.log
}

func (s *Server) routes() {
	api.RegisterRoutes(s.humaAPI, s.services)

	s.router.Handle("/metrics", s.metrics.Handler())
	if s.config.DataDir != "" {
		prefix := s.config.DataPrefix + "/"
		s.router.Handle(prefix+"*", http.StripPrefix(prefix, handleData(s.config.DataDir)))
	}
}

// handleData serves data files with the CORS and Range headers map clients
// need for ranged reads.
func handleData(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		files.ServeHTTP(w, r)
	})
}

// requestLogger attaches the chi request id to the context and logs one
// debug line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ctx := logger.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))
			l := logger.FromContext(ctx, log)
			l.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Msg("http request")
		}
		return http.HandlerFunc(fn)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// no WriteTimeout: /api/v1/events is a long-lived stream
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http listen")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
