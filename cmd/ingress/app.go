package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/config"
	"github.com/David-Botos/retail-ingress/pkg/connector"
	"github.com/David-Botos/retail-ingress/pkg/extract"
)

// app opens connections on first use and closes them in reverse order
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	factory *connector.ConnectorFactory

	targetConn    *connector.PostgresConnector
	sourceConn    *connector.RDSConnector
	snowflakeConn *connector.SnowflakeConnector
	gcs           *extract.GCSOpener

	closers []func() error
}

func newApp(cfg *config.Config, logger *zap.Logger) *app {
	return &app{
		cfg:     cfg,
		logger:  logger,
		factory: connector.NewConnectorFactory(cfg, logger),
	}
}

func (a *app) target(ctx context.Context) (*connector.PostgresConnector, error) {
	if a.targetConn != nil {
		return a.targetConn, nil
	}
	conn, err := a.factory.CreatePostgresConnector(ctx)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, conn.Close)
	if err := conn.Validate(ctx); err != nil {
		return nil, err
	}
	if err := conn.EnsureSchema(ctx, a.cfg.TargetSchema); err != nil {
		return nil, err
	}
	a.targetConn = conn
	return conn, nil
}

func (a *app) source(ctx context.Context) (*connector.RDSConnector, error) {
	if a.sourceConn != nil {
		return a.sourceConn, nil
	}
	conn, err := a.factory.CreateRDSConnector(ctx)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, conn.Close)
	if err := conn.Validate(ctx); err != nil {
		return nil, err
	}
	a.sourceConn = conn
	return conn, nil
}

func (a *app) snowflake(ctx context.Context) (*connector.SnowflakeConnector, error) {
	if a.snowflakeConn != nil {
		return a.snowflakeConn, nil
	}
	conn, err := a.factory.CreateSnowflakeConnector(ctx)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, conn.Close)
	if err := conn.Validate(ctx); err != nil {
		return nil, err
	}
	a.snowflakeConn = conn
	return conn, nil
}

// router registers an extractor for every kind the jobs need.
// Database connections are only opened for kinds that are used.
func (a *app) router(ctx context.Context, kinds map[extract.Kind]bool) (*extract.Router, error) {
	r := extract.NewRouter(a.logger)
	client := &http.Client{Timeout: a.cfg.StoreAPI.Timeout}

	if kinds[extract.KindRDS] {
		src, err := a.source(ctx)
		if err != nil {
			return nil, err
		}
		r.Register(extract.KindRDS, extract.NewRDSExtractor(src.X(), a.logger))
	}

	if kinds[extract.KindSnowflake] {
		sf, err := a.snowflake(ctx)
		if err != nil {
			return nil, err
		}
		r.Register(extract.KindSnowflake, extract.NewSnowflakeExtractor(sf, a.cfg.BatchSize, a.logger))
	}

	r.Register(extract.KindPDF, extract.NewPDFExtractor(extract.ExecRunner{}, client, a.logger))
	r.Register(extract.KindAPI, extract.NewStoreAPIExtractor(
		a.cfg.StoreAPI.BaseURL,
		a.cfg.StoreAPI.APIKey,
		a.logger,
		extract.WithRetry(a.cfg.StoreAPI.Retries, a.cfg.StoreAPI.Backoff),
		extract.WithHTTPClient(client),
	))

	objects := extract.NewObjectExtractor(a.logger)
	if kinds[extract.KindObject] {
		s3Opener, err := extract.NewS3Opener(ctx, a.cfg.Sources.AWSRegion)
		if err != nil {
			return nil, err
		}
		objects.WithOpener("s3", s3Opener)

		a.gcs = &extract.GCSOpener{}
		a.closers = append(a.closers, a.gcs.Close)
		objects.WithOpener("gs", a.gcs)
	}
	r.Register(extract.KindObject, objects)

	return r, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Failed to close resource", zap.Error(err))
		}
	}
	a.closers = nil
}

func sourceKinds(sources ...extract.Source) map[extract.Kind]bool {
	kinds := make(map[extract.Kind]bool, len(sources))
	for _, src := range sources {
		kinds[src.Kind] = true
	}
	return kinds
}
