package main

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/records-cli/internal/artifacts"
	"github.com/sells-group/records-cli/internal/config"
	"github.com/sells-group/records-cli/internal/fetcher"
	"github.com/sells-group/records-cli/internal/handler"
	"github.com/sells-group/records-cli/internal/model"
	"github.com/sells-group/records-cli/internal/monitoring"
	"github.com/sells-group/records-cli/internal/outcome"
	"github.com/sells-group/records-cli/internal/pdf"
	"github.com/sells-group/records-cli/internal/resilience"
	"github.com/sells-group/records-cli/internal/store"
	"github.com/sells-group/records-cli/pkg/browseruse"
)

// openStore opens and migrates the configured result store.
func openStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch sc.Driver {
	case "sqlite":
		st, err = store.NewSQLite(sc.Path)
	case "postgres":
		st, err = store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	if err := st.Migrate(ctx); err != nil {
		return nil, closeAll(eris.Wrap(err, "migrate store"), st.Close)
	}
	return st, nil
}

// closeAll runs every closer and folds their errors into err.
func closeAll(err error, closers ...func() error) error {
	var errs *multierror.Error
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	for _, c := range closers {
		if cerr := c(); cerr != nil {
			errs = multierror.Append(errs, cerr)
		}
	}
	return errs.ErrorOrNil()
}

// submitEnv holds everything a run needs to submit forms.
type submitEnv struct {
	Store    store.Store
	Handlers *handler.Registry
	Metrics  *monitoring.Recorder
	Checker  *monitoring.Checker
}

// Close releases the store.
func (e *submitEnv) Close() error {
	return closeAll(nil, e.Store.Close)
}

func initSubmit(ctx context.Context, c *config.Config) (*submitEnv, error) {
	if err := c.Validate("run"); err != nil {
		return nil, err
	}

	st, err := openStore(ctx, c.Store)
	if err != nil {
		return nil, err
	}

	reg, err := buildHandlers(ctx, c)
	if err != nil {
		return nil, closeAll(err, st.Close)
	}

	alerter := monitoring.NewAlerter(c.Monitoring)
	return &submitEnv{
		Store:    st,
		Handlers: reg,
		Metrics:  monitoring.NewRecorder(),
		Checker:  monitoring.NewChecker(monitoring.NewCollector(st), alerter, c.Monitoring),
	}, nil
}

// buildHandlers registers the PDF handler and one agent handler per web
// portal type. GENERIC_WEB is registered so unknown types fall back to it.
func buildHandlers(ctx context.Context, c *config.Config) (*handler.Registry, error) {
	interp := outcome.DefaultInterpreter()
	if c.Evidence.RulesPath != "" {
		rules, err := outcome.LoadRules(c.Evidence.RulesPath)
		if err != nil {
			return nil, eris.Wrap(err, "load evidence rules")
		}
		if interp, err = outcome.NewInterpreter(rules); err != nil {
			return nil, eris.Wrap(err, "compile evidence rules")
		}
	}

	uploader, err := buildUploader(ctx, c.Artifacts)
	if err != nil {
		return nil, err
	}

	reg := handler.NewRegistry()

	fetch := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:     time.Duration(c.PDF.DownloadTimeoutSecs) * time.Second,
		PerHostRate: rate.Limit(1),
	})
	reg.Register(handler.NewPDFHandler(fetch, pdf.NewPdftkFiller(c.PDF.PdftkPath), uploader, c.Requester,
		handler.PDFConfig{DownloadDir: c.PDF.DownloadDir, FilledDir: c.PDF.FilledDir}),
		model.FormTypePDF)

	client := browseruse.NewClient(c.Agent.APIKey, browseruse.WithBaseURL(c.Agent.BaseURL))
	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		Name:      "browseruse",
		Threshold: c.Agent.BreakerThreshold,
		Cooldown:  time.Duration(c.Agent.BreakerCooldown) * time.Second,
		Counts:    resilience.IsTransient,
	})
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = c.Agent.RetryAttempts
	agentCfg := handler.AgentConfig{
		MaxSteps:     c.Agent.MaxSteps,
		PollInterval: time.Duration(c.Agent.PollIntervalSecs) * time.Second,
		Timeout:      time.Duration(c.Agent.TimeoutSecs) * time.Second,
		Retry:        retry,
	}

	for _, ft := range model.FormTypes {
		if ft == model.FormTypePDF {
			continue
		}
		name := "agent:" + string(ft)
		reg.Register(handler.NewAgentHandler(name, handler.PortalFor(ft), client, interp, breaker, c.Requester, agentCfg), ft)
	}
	return reg, nil
}

// buildUploader returns nil when artifact upload is disabled.
func buildUploader(ctx context.Context, ac artifacts.Config) (artifacts.Uploader, error) {
	if !ac.Enabled {
		return nil, nil
	}
	u, err := artifacts.NewMinioUploader(ac)
	if err != nil {
		return nil, eris.Wrap(err, "init artifact uploader")
	}
	if err := u.EnsureBucket(ctx); err != nil {
		return nil, eris.Wrap(err, "ensure artifact bucket")
	}
	zap.L().Info("artifact upload enabled", zap.String("bucket", ac.Bucket))
	return u, nil
}
