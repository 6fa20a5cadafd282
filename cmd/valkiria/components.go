package main

import (
	"context"
	"fmt"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/blob"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/config"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/generate"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/render"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/signing"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/stamp"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/storage"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/variables"
)

// Components holds initialized services.
type Components struct {
	Storage   storage.Storage
	Blobs     blob.Store
	Pipeline  *render.Pipeline
	Workflow  *signing.Workflow
	Generator *generate.Service
	closers   []func() error
}

func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}

	switch cfg.Storage.Backend {
	case config.BackendFirestore:
		client, err := storage.NewFirestoreClient(ctx, cfg.Storage.FirestoreProject)
		if err != nil {
			return nil, err
		}
		c.Storage = storage.NewFirestoreStorage(client, cfg.Storage.FirestoreCollection)
	default:
		store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		c.Storage = store
	}
	c.closers = append(c.closers, c.Storage.Close)

	switch cfg.Blob.Backend {
	case config.BackendGCS:
		client, err := gcs.NewClient(ctx)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		c.closers = append(c.closers, client.Close)
		c.Blobs = blob.NewGCSStore(client, cfg.Blob.GCSBucket, cfg.Blob.GCSPrefix, logger)
	default:
		store, err := blob.NewDiskStore(cfg.Blob.Dir)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize blob store: %w", err)
		}
		c.Blobs = store
	}

	stamper, err := stamp.New(c.Blobs, stamp.BlobImages{Store: c.Blobs}, cfg.Stamp, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Pipeline = render.FromConfig(&cfg.Render, logger)
	c.Workflow = signing.NewWorkflow(c.Storage, stamper,
		signing.WithRegistry(c.Storage),
		signing.WithLogger(logger),
	)
	c.Generator = generate.NewService(c.Storage, c.Blobs, variables.MapResolver{}, c.Pipeline, c.Workflow,
		generate.WithLogger(logger),
		generate.WithValueFormat(cfg.Variables.ValueFormat()),
		generate.WithAutoActivate(cfg.Templates.AutoActivate),
	)
	logger.Debug("components initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("blob", cfg.Blob.Backend),
		zap.Strings("render_strategies", c.Pipeline.Strategies()),
	)
	return c, nil
}
