package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"maritimeacademy/site-admin/internal/audit"
	"maritimeacademy/site-admin/internal/auth"
	"maritimeacademy/site-admin/internal/backend"
	"maritimeacademy/site-admin/internal/config"
	"maritimeacademy/site-admin/internal/content"
	"maritimeacademy/site-admin/internal/docstore"
	"maritimeacademy/site-admin/internal/migrations"
	"maritimeacademy/site-admin/internal/observability"
)

const serviceName = "maritime-site-api"

// Version is reported by /api/info and the build_info metric.
var Version = "0.1.0"

type AuthService interface {
	Login(ctx context.Context, email, password string) (auth.LoginResult, error)
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
	Logout(ctx context.Context, token string) (bool, error)
	ChangePassword(ctx context.Context, token, currentPassword, newPassword string) error
	ListSessions(ctx context.Context) ([]auth.SessionView, error)
	RevokeSession(ctx context.Context, sessionID string) error
	SessionTTL() time.Duration
}

type AccountService interface {
	GetAccount(ctx context.Context, id string) (auth.Account, error)
	ListAccounts(ctx context.Context, role auth.Role) ([]auth.Account, error)
	CreateAccount(ctx context.Context, in auth.NewAccount) (auth.Account, error)
	UpdateAccount(ctx context.Context, id string, in auth.AccountUpdate) (auth.Account, error)
	DeactivateAccount(ctx context.Context, id string) error
}

type EventService interface {
	List(ctx context.Context, f content.EventFilter) ([]content.Event, error)
	Get(ctx context.Context, id string) (content.Event, error)
	Create(ctx context.Context, in content.Event, actor string) (content.Event, error)
	Update(ctx context.Context, id string, patch docstore.Document) (content.Event, error)
	Delete(ctx context.Context, id string) error
	Register(ctx context.Context, id string) (content.Event, error)
}

type NewsService interface {
	List(ctx context.Context, f content.NewsFilter) ([]content.Article, error)
	Get(ctx context.Context, id string) (content.Article, error)
	GetPublished(ctx context.Context, idOrSlug string) (content.Article, error)
	Create(ctx context.Context, in content.Article, actor string) (content.Article, error)
	Update(ctx context.Context, id string, patch docstore.Document) (content.Article, error)
	Delete(ctx context.Context, id string) error
}

type MigrationService interface {
	List() ([]migrations.FileInfo, error)
	Status(ctx context.Context) ([]migrations.Status, error)
	Apply(ctx context.Context) ([]string, error)
}

type BackendClient interface {
	Do(ctx context.Context, req backend.Request) (*backend.Response, error)
	GetEnvelope(ctx context.Context, path string, query url.Values, token string) (backend.Envelope, error)
	Health(ctx context.Context) (backend.HealthStatus, error)
}

type AuditLogger interface {
	Log(e audit.Entry) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Options carries the request-facing settings that are not services.
type Options struct {
	Environment     string
	CookieName      string
	SecureCookies   bool
	TokenStorageKey string
	AllowedOrigins  []string
	MaxBodyBytes    int64
	LoginPerMinute  int
	LoginBurst      int
	// TrustProxy makes client addresses come from X-Forwarded-For and
	// X-Real-IP. Only set it behind a proxy that overwrites them.
	TrustProxy bool
}

func (o Options) cookieName() string {
	if strings.TrimSpace(o.CookieName) == "" {
		return "auth-token"
	}
	return o.CookieName
}

type Deps struct {
	Auth            AuthService
	Accounts        AccountService
	Events          EventService
	News            NewsService
	Migrations      MigrationService
	Backend         BackendClient
	Audit           AuditLogger
	Store           Pinger
	Metrics         *observability.Metrics
	Logger          *slog.Logger
	Options         Options
	FrontendDistDir string
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.HTTPConfig, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      Wrap(NewHandler(deps), deps),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Wrap applies the middleware stack, outermost first: request id and
// logging, metrics, security headers, CORS, body limit.
func Wrap(h http.Handler, deps Deps) http.Handler {
	h = maxBodyBytes(h, deps.Options.MaxBodyBytes)
	h = cors(h, deps.Options.AllowedOrigins)
	h = securityHeaders(h)
	h = deps.Metrics.Instrument(h)
	return loggingMiddleware(h, deps.logger(), deps.Options.TrustProxy)
}

func NewHandler(deps Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Store.Ping(ctx); err != nil {
				deps.logger().Warn("readiness check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeData(w, http.StatusOK, map[string]string{
			"service":         serviceName,
			"version":         Version,
			"environment":     deps.Options.Environment,
			"tokenStorageKey": deps.Options.TokenStorageKey,
		})
	})
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics.Handler())
	}

	registerAuthHandlers(mux, deps)
	registerAccountHandlers(mux, deps)
	registerSessionAdminHandlers(mux, deps)
	registerEventHandlers(mux, deps)
	registerNewsHandlers(mux, deps)
	registerMigrationHandlers(mux, deps)
	registerBackendHandlers(mux, deps)
	registerFrontendHandlers(mux, deps.FrontendDistDir, deps.logger())

	return mux
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
