package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/docmail/docmail/pkg/config"
	"github.com/docmail/docmail/pkg/document"
	"github.com/docmail/docmail/pkg/graph"
	"github.com/docmail/docmail/pkg/ingest"
	"github.com/docmail/docmail/pkg/mail"
	"github.com/docmail/docmail/pkg/metrics"
	"github.com/docmail/docmail/pkg/ratelimit"
)

// MailSender validates and dispatches an outgoing notice.
type MailSender interface {
	Send(ctx context.Context, req mail.SendRequest, attachments []document.Attachment) (mail.SendResult, error)
}

// Ingester runs one inbox ingestion.
type Ingester interface {
	Ingest(ctx context.Context) (ingest.Result, error)
}

// AttachmentLister lists attachment metadata of one mailbox message.
type AttachmentLister interface {
	ListAttachments(ctx context.Context, messageID string) ([]graph.AttachmentInfo, error)
}

// Dependencies are the services behind the routes. Attachments may be nil,
// in which case the attachment route is not registered.
type Dependencies struct {
	Mail        MailSender
	Ingest      Ingester
	Attachments AttachmentLister
}

type Server struct {
	gin         *gin.Engine
	config      config.Config
	deps        Dependencies
	log         *zap.SugaredLogger
	rateLimiter *ratelimit.IPRateLimiter
}

func NewServer(log *zap.Logger, cfg config.Config, debug bool, deps Dependencies) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
	)
	if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		log.Sugar().Warnw("Ignoring invalid trusted proxies", "trustedProxies", cfg.Server.TrustedProxies, "error", err)
		_ = engine.SetTrustedProxies(nil)
	}
	engine.MaxMultipartMemory = 32 << 20

	if debug {
		engine.Use(
			cors.New(cors.Config{
				AllowOrigins:  []string{"http://localhost:5173", "http://127.0.0.1:8080"},
				AllowMethods:  []string{"GET", "POST", "OPTIONS"},
				AllowHeaders:  []string{"Origin", "Content-Type", apiKeyHeader, requestIDHeader},
				ExposeHeaders: []string{requestIDHeader},
				MaxAge:        12 * time.Hour,
			}),
		)
	}

	s := &Server{
		gin:    engine,
		config: cfg,
		deps:   deps,
		log:    log.Sugar().Named("api"),
	}
	engine.Use(s.requestContext(), requestMetrics())

	if cfg.RateLimit.Enabled {
		s.rateLimiter = ratelimit.New(ratelimit.FromConfig(cfg.RateLimit))
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.gin.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	public := s.gin.Group("/")
	if s.rateLimiter != nil {
		public.Use(s.rateLimiter.Middleware())
	}
	public.GET("/", s.health)

	protected := public.Group("/", s.apiKeyAuth())
	protected.POST("/sendDocumentOutgoing", s.sendDocumentOutgoing)
	protected.GET("/receiveDocumentIncoming", s.receiveDocumentIncoming)
	if s.deps.Attachments != nil {
		protected.GET("/documents/:messageId/attachments", s.listAttachments)
	}
}

// Handler returns the traced HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.gin, "docmail.api")
}

// Listen serves until ctx is cancelled, then shuts down gracefully. TLS is
// used when both a certificate and a key are configured.
func (s *Server) Listen(ctx context.Context) error {
	timeouts := s.config.Server.GetServerTimeouts()
	srv := &http.Server{
		Addr:              s.config.Server.ListenAddress,
		Handler:           s.Handler(),
		ReadTimeout:       timeouts.GetReadTimeout(),
		ReadHeaderTimeout: timeouts.GetReadHeaderTimeout(),
		WriteTimeout:      timeouts.GetWriteTimeout(),
		IdleTimeout:       timeouts.GetIdleTimeout(),
		MaxHeaderBytes:    timeouts.GetMaxHeaderBytes(),
	}

	errCh := make(chan error, 1)
	go func() {
		if s.config.Server.TLSCertFile != "" && s.config.Server.TLSKeyFile != "" {
			s.log.Infow("Serving HTTPS", "address", srv.Addr)
			errCh <- srv.ListenAndServeTLS(s.config.Server.TLSCertFile, s.config.Server.TLSKeyFile)
			return
		}
		s.log.Infow("Serving HTTP", "address", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.log.Infow("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.GetShutdownTimeout())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Close releases background resources held by the middleware.
func (s *Server) Close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}
