package http

import (
	"html/template"
	"net/http"

	"github.com/geocoder89/claimdesk/internal/auth"
	"github.com/geocoder89/claimdesk/internal/http/handlers"
	"github.com/geocoder89/claimdesk/internal/http/middlewares"
	"github.com/geocoder89/claimdesk/internal/notifications"
	"github.com/geocoder89/claimdesk/internal/observability"
	"github.com/geocoder89/claimdesk/internal/service"
	"github.com/geocoder89/claimdesk/internal/session"
	"github.com/geocoder89/claimdesk/internal/web"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxFormBytes = 1 << 20

type RouterDeps struct {
	Env          string
	ServiceName  string
	Accounts     handlers.Accounts
	Claims       handlers.ClaimService
	Sessions     *auth.Manager
	Revoker      session.Revoker
	Notifier     notifications.Notifier
	Prom         *observability.Prom
	Checks       map[string]handlers.Pinger
	ReviewerRole string
	LoginPerMin  int
	SecureCookie bool
	// Templates defaults to the embedded pages.
	Templates *template.Template
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Env != "dev" && deps.Env != "test" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	tmpl := deps.Templates
	if tmpl == nil {
		tmpl = web.MustTemplates()
	}
	r.SetHTMLTemplate(tmpl)

	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = "claimdesk"
	}

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.MaxBodyBytes(maxFormBytes))

	authMw := middlewares.NewAuthMiddleware(deps.Sessions, deps.Revoker, middlewares.DefaultPublicPaths())
	r.Use(authMw.RequireSession())

	// operational
	health := handlers.NewHealthHandler(deps.Checks)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	if deps.Prom != nil {
		r.GET("/metrics", gin.WrapH(deps.Prom.Handler()))
	}
	r.StaticFS("/static", web.Static())

	// accounts
	authHandler := handlers.NewAuthHandler(deps.Accounts, deps.Sessions, deps.Revoker, deps.SecureCookie)
	loginLimiter := middlewares.NewRateLimiter(deps.LoginPerMin)

	r.GET("/login", authHandler.ShowLogin)
	r.POST("/login", loginLimiter.Middleware(middlewares.KeyByIP), authHandler.Login)
	r.GET("/register", authHandler.ShowRegister)
	r.POST("/register", loginLimiter.Middleware(middlewares.KeyByIP), authHandler.Register)
	r.GET("/logout", authHandler.Logout)
	r.POST("/logout", authHandler.Logout)

	// claims
	claimsHandler := handlers.NewClaimsHandler(deps.Claims, deps.Notifier, deps.Prom, deps.ReviewerRole)

	r.GET("/", func(ctx *gin.Context) { ctx.Redirect(http.StatusFound, "/claims") })
	r.GET("/claims", claimsHandler.Dashboard)
	r.GET("/dashboard", claimsHandler.Dashboard)
	r.GET("/claim/create", claimsHandler.ShowCreate)
	r.POST("/claim/save", claimsHandler.Save)

	decide := r.Group("/claim/:id")
	if deps.ReviewerRole != "" {
		decide.Use(middlewares.RequireRole(deps.ReviewerRole))
	}
	decide.POST("/approve", claimsHandler.Approve)
	decide.POST("/decline", claimsHandler.Decline)

	return r
}

// compile-time checks
var (
	_ handlers.Accounts     = (*service.Authenticator)(nil)
	_ handlers.ClaimService = (*service.ClaimWorkflow)(nil)
)
