package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Commandability/commandability-web-sub001/internal/adapter/outbound/cel"
	"github.com/Commandability/commandability-web-sub001/internal/adapter/outbound/filestore"
	"github.com/Commandability/commandability-web-sub001/internal/adapter/outbound/memory"
	"github.com/Commandability/commandability-web-sub001/internal/adapter/outbound/realtime"
	"github.com/Commandability/commandability-web-sub001/internal/adapter/outbound/s3"
	"github.com/Commandability/commandability-web-sub001/internal/adapter/outbound/sqlite"
	"github.com/Commandability/commandability-web-sub001/internal/config"
	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

// documentBackend is what the document driver must provide: the realtime
// store the services read and delete from, and the writer seeding uses.
type documentBackend interface {
	outbound.DocumentStore
	outbound.DocumentWriter
}

// objectBackend is what the object driver must provide.
type objectBackend interface {
	outbound.ObjectStore
	outbound.ObjectWriter
}

// probe is a named health check contributed by a backend.
type probe struct {
	name  string
	check func(ctx context.Context) error
}

// backends holds the configured stores and knows how to release them.
type backends struct {
	docs    documentBackend
	objects objectBackend
	probes  []probe
	closers []func() error
}

// Close releases the stores in reverse order of creation.
func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}

// openBackends builds the document and object stores selected by cfg.
// On error everything opened so far is closed.
func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backends, error) {
	b := &backends{}
	if err := b.openDocuments(ctx, cfg.Documents, logger); err != nil {
		return nil, err
	}
	if err := b.openObjects(ctx, cfg.Objects, logger); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backends) openDocuments(ctx context.Context, cfg config.DocumentsConfig, logger *slog.Logger) error {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to create filter evaluator: %w", err)
	}
	hubOpts := []realtime.Option{realtime.WithFilterCompiler(evaluator)}

	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath, logger, hubOpts...)
		if err != nil {
			return fmt.Errorf("failed to open document store: %w", err)
		}
		b.docs = store
		b.probes = append(b.probes, probe{name: "documents", check: store.Health})
		b.closers = append(b.closers, store.Close)
		logger.Info("document store ready", "driver", cfg.Driver, "path", cfg.SQLitePath)
	case config.DriverMemory, "":
		store := memory.NewDocumentStore(logger, hubOpts...)
		b.docs = store
		b.closers = append(b.closers, func() error {
			store.Close()
			return nil
		})
		logger.Info("document store ready", "driver", config.DriverMemory)
	default:
		return fmt.Errorf("unknown document driver %q", cfg.Driver)
	}
	return nil
}

func (b *backends) openObjects(ctx context.Context, cfg config.ObjectsConfig, logger *slog.Logger) error {
	switch cfg.Driver {
	case config.DriverFilesystem:
		store, err := filestore.New(cfg.Dir, logger)
		if err != nil {
			return fmt.Errorf("failed to open object store: %w", err)
		}
		b.objects = store
		logger.Info("object store ready", "driver", cfg.Driver, "dir", store.Root())
	case config.DriverS3:
		store, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to open object store: %w", err)
		}
		b.objects = store
		b.probes = append(b.probes, probe{name: "objects", check: store.Health})
		logger.Info("object store ready", "driver", cfg.Driver, "bucket", cfg.S3.Bucket)
	case config.DriverMemory, "":
		b.objects = memory.NewObjectStore()
		logger.Info("object store ready", "driver", config.DriverMemory)
	default:
		return fmt.Errorf("unknown object driver %q", cfg.Driver)
	}
	return nil
}
