package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/docmail/docmail/pkg/api"
	"github.com/docmail/docmail/pkg/codec"
	"github.com/docmail/docmail/pkg/config"
	"github.com/docmail/docmail/pkg/credential"
	"github.com/docmail/docmail/pkg/graph"
	"github.com/docmail/docmail/pkg/imapbox"
	"github.com/docmail/docmail/pkg/ingest"
	"github.com/docmail/docmail/pkg/invoker"
	"github.com/docmail/docmail/pkg/mail"
)

// App holds the services assembled from one configuration.
type App struct {
	Config   config.Config
	Mail     *mail.Service
	Pipeline *ingest.Pipeline
	// Graph is nil for the imap backend.
	Graph *graph.Client
}

// NewApp wires the mailbox, sender and codec selected by cfg.Mail.Backend:
//
//	graph: Graph ingestion and Graph sendMail
//	smtp:  Graph ingestion, SMTP delivery
//	imap:  IMAP ingestion, SMTP delivery
func NewApp(cfg config.Config, log *zap.SugaredLogger) (*App, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	app := &App{Config: cfg}

	var (
		mailbox ingest.Mailbox
		sender  mail.Sender
		from    = cfg.Graph.UserEmail
	)

	if cfg.UsesGraph() {
		gc, err := newGraphClient(cfg, log)
		if err != nil {
			return nil, err
		}
		app.Graph = gc
		mailbox = gc
		sender = gc
	}
	if cfg.UsesSMTP() {
		sender = mail.NewSMTPSender(cfg.Mail.SMTP, log)
		from = cfg.Mail.SMTP.SenderAddress
	}
	if cfg.Mail.Backend == config.BackendIMAP {
		mailbox = imapbox.New(cfg.Mail.IMAP, log)
	}
	if mailbox == nil || sender == nil {
		return nil, fmt.Errorf("mail backend %q is not supported", cfg.Mail.Backend)
	}

	docCodec := codec.Default()
	if cfg.Mail.TemplatePath != "" {
		c, err := codec.NewFromFile(cfg.Mail.TemplatePath)
		if err != nil {
			return nil, err
		}
		docCodec = c
	}

	app.Mail = mail.NewService(sender, cfg.Mail.Backend, from, log,
		mail.WithCodec(docCodec),
		mail.WithFontSize(cfg.Mail.FontSize))
	app.Pipeline = ingest.NewPipeline(mailbox, log, ingest.WithDecoder(docCodec))

	log.Infow("Mail backend configured",
		"backend", cfg.Mail.Backend,
		"from", from,
		"template", cfg.Mail.TemplatePath)
	return app, nil
}

func newGraphClient(cfg config.Config, log *zap.SugaredLogger) (*graph.Client, error) {
	httpClient := graph.NewHTTPClient()

	issuer, err := credential.NewClientCredentialsIssuer(credential.ClientCredentialsConfig{
		ClientID:     cfg.Identity.ClientID,
		ClientSecret: cfg.Identity.ClientSecret,
		TenantID:     cfg.Identity.TenantID,
		Authority:    cfg.Identity.Authority,
		TokenURL:     cfg.Identity.TokenURL,
		Discovery:    cfg.Identity.Discovery,
		Scopes:       cfg.Identity.Scopes,
		HTTPClient:   httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring mail API credentials: %w", err)
	}
	session := credential.NewSession(issuer,
		credential.WithWindow(cfg.TokenWindowDuration()),
		credential.WithLogger(log))

	calls := invoker.New(httpClient, session, log, invoker.WithConfig(invoker.Config{
		MaxAttempts:    cfg.Graph.MaxAttempts,
		BaseDelay:      cfg.BaseDelayDuration(),
		AttemptTimeout: cfg.AttemptTimeoutDuration(),
	}))

	return graph.New(cfg.Graph.UserEmail, calls,
		graph.WithBaseURL(cfg.Graph.BaseURL),
		graph.WithPageSize(cfg.Graph.PageSize),
		graph.WithLogger(log)), nil
}

// Dependencies adapts the app to the HTTP server.
func (a *App) Dependencies() api.Dependencies {
	deps := api.Dependencies{Mail: a.Mail, Ingest: a.Pipeline}
	if a.Graph != nil {
		deps.Attachments = a.Graph
	}
	return deps
}
