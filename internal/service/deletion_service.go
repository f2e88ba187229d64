package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Commandability/commandability-web-sub001/internal/ctxkey"
	"github.com/Commandability/commandability-web-sub001/internal/domain/deletion"
	"github.com/Commandability/commandability-web-sub001/internal/domain/document"
	"github.com/Commandability/commandability-web-sub001/internal/domain/namespace"
	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

const instrumentationName = "github.com/Commandability/commandability-web-sub001/internal/service"

// DeletionService performs coordinated deletion across the document store
// and the object store. It owns no persistent state.
type DeletionService struct {
	auth    outbound.AuthProvider
	docs    outbound.DocumentStore
	objects outbound.ObjectStore
	logger  *slog.Logger
	metrics *Metrics
	journal outbound.DeletionJournal
	now     func() time.Time

	tracer   trace.Tracer
	orphaned metric.Int64Counter
}

// DeletionOption configures a DeletionService.
type DeletionOption func(*DeletionService)

// WithDeletionMetrics records deletion outcomes in m.
func WithDeletionMetrics(m *Metrics) DeletionOption {
	return func(s *DeletionService) {
		s.metrics = m
	}
}

// WithJournal records every committed deletion in j.
func WithJournal(j outbound.DeletionJournal) DeletionOption {
	return func(s *DeletionService) {
		s.journal = j
	}
}

// WithDeletionClock overrides the time source of journal entries.
func WithDeletionClock(now func() time.Time) DeletionOption {
	return func(s *DeletionService) {
		s.now = now
	}
}

// WithTracerProvider sets the provider deletion spans are started from.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) DeletionOption {
	return func(s *DeletionService) {
		s.tracer = tp.Tracer(instrumentationName)
	}
}

// WithMeterProvider sets the provider of the orphaned objects counter.
// Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) DeletionOption {
	return func(s *DeletionService) {
		s.orphaned = newOrphanedCounter(mp)
	}
}

// NewDeletionService creates a new DeletionService.
func NewDeletionService(auth outbound.AuthProvider, docs outbound.DocumentStore, objects outbound.ObjectStore, logger *slog.Logger, opts ...DeletionOption) *DeletionService {
	s := &DeletionService{
		auth:    auth,
		docs:    docs,
		objects: objects,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	if s.orphaned == nil {
		s.orphaned = newOrphanedCounter(otel.GetMeterProvider())
	}
	return s
}

func newOrphanedCounter(mp metric.MeterProvider) metric.Int64Counter {
	counter, err := mp.Meter(instrumentationName).Int64Counter(
		"commandability.deletion.orphaned_objects",
		metric.WithDescription("Stored objects left behind after their metadata was deleted"),
		metric.WithUnit("{object}"),
	)
	if err != nil {
		// The API returns a usable no-op instrument alongside the error.
		otel.Handle(err)
	}
	return counter
}

// Delete reauthenticates req.Identity, deletes the target metadata records
// in one atomic batch, then deletes each record's stored objects
// independently.
//
// A reauthentication failure is returned as Result.FieldErrors with a nil
// error, and nothing is written. A batch failure is returned as an error
// before any object is touched. Object failures after the commit do not
// stop the remaining deletions; they are collected in Result.FailedObjects.
func (s *DeletionService) Delete(ctx context.Context, req deletion.Request) (*deletion.Result, error) {
	if err := req.Validate(); err != nil {
		s.metrics.deletion("invalid", 0)
		return nil, err
	}
	uid := req.Identity.ID

	// Step 1: reauthentication gate.
	if code := s.reauthenticate(ctx, req); code != "" {
		s.metrics.deletion("reauth_failed", 0)
		return &deletion.Result{FieldErrors: deletion.FieldErrors{deletion.PasswordField: code}}, nil
	}

	// Step 2: metadata batch.
	ids, err := s.deleteMetadata(ctx, req)
	if err != nil {
		s.metrics.deletion("error", 0)
		s.loggerFor(ctx).Error("metadata deletion failed", "identity", uid, "error", err)
		return nil, err
	}

	result := &deletion.Result{DeletedRecordIDs: ids}

	// Step 3: objects. The batch is committed, so a caller going away must
	// not abandon the cleanup.
	s.deleteObjects(context.WithoutCancel(ctx), uid, ids, result)

	entry := deletion.NewJournalEntry(s.now(), req, result)
	s.metrics.deletion(entry.Outcome, len(result.FailedObjects))
	s.record(ctx, entry)
	s.loggerFor(ctx).Info("reports deleted",
		"identity", uid,
		"records", len(result.DeletedRecordIDs),
		"objects", result.DeletedObjects,
		"failed_objects", len(result.FailedObjects),
	)
	return result, nil
}

// record writes entry to the journal. The deletion already happened, so a
// journal failure is only logged.
func (s *DeletionService) record(ctx context.Context, entry deletion.JournalEntry) {
	if s.journal == nil {
		return
	}
	entry.RequestID, _ = ctx.Value(ctxkey.RequestIDKey{}).(string)
	if err := s.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.loggerFor(ctx).Error("failed to journal deletion", "identity", entry.IdentityID, "error", err)
	}
}

// loggerFor prefers the request-scoped logger the HTTP middleware stores.
func (s *DeletionService) loggerFor(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger.With("component", "deletion")
	}
	return s.logger
}

func (s *DeletionService) reauthenticate(ctx context.Context, req deletion.Request) string {
	ctx, span := s.tracer.Start(ctx, "deletion.reauthenticate",
		trace.WithAttributes(attribute.String("identity.id", req.Identity.ID)))
	defer span.End()

	err := s.auth.Reauthenticate(ctx, req.Identity, req.Secret)
	if err == nil {
		return ""
	}
	code := reauthCode(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, code)
	if code == deletion.CodeInternalError {
		s.loggerFor(ctx).Error("reauthentication failed", "identity", req.Identity.ID, "error", err)
	} else {
		s.loggerFor(ctx).Info("reauthentication rejected", "identity", req.Identity.ID, "code", code)
	}
	return code
}

// reauthCode maps a provider error to its field error code.
func reauthCode(err error) string {
	switch {
	case errors.Is(err, outbound.ErrWrongSecret):
		return deletion.CodeWrongPassword
	case errors.Is(err, outbound.ErrTooManyRequests):
		return deletion.CodeTooManyRequests
	case errors.Is(err, outbound.ErrIdentityMismatch):
		return deletion.CodeUserMismatch
	default:
		return deletion.CodeInternalError
	}
}

// deleteMetadata resolves the target ids and deletes them in one batch.
func (s *DeletionService) deleteMetadata(ctx context.Context, req deletion.Request) (ids []string, err error) {
	ctx, span := s.tracer.Start(ctx, "deletion.metadata",
		trace.WithAttributes(
			attribute.String("identity.id", req.Identity.ID),
			attribute.Bool("deletion.all", req.All),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "metadata deletion failed")
		}
		span.End()
	}()

	uid := req.Identity.ID
	ids, err = s.resolveTargets(ctx, uid, req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("deletion.records", len(ids)))
	if len(ids) == 0 {
		return nil, nil
	}

	batch := s.docs.BeginBatch()
	for _, id := range ids {
		ref, err := namespace.Report(uid, id)
		if err != nil {
			return nil, err
		}
		batch.Delete(ref)
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit metadata batch: %w", err)
	}
	return ids, nil
}

func (s *DeletionService) resolveTargets(ctx context.Context, uid string, req deletion.Request) ([]string, error) {
	if !req.All {
		seen := make(map[string]struct{}, len(req.TargetIDs))
		ids := make([]string, 0, len(req.TargetIDs))
		for _, id := range req.TargetIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		return ids, nil
	}

	refs, err := s.docs.ListChildren(ctx, namespace.Reports(uid))
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.Kind() != document.KindDocument {
			continue
		}
		ids = append(ids, ref.ID())
	}
	return ids, nil
}

// deleteObjects removes every object under each record's prefix. Failures
// are recorded and do not block the others.
func (s *DeletionService) deleteObjects(ctx context.Context, uid string, ids []string, result *deletion.Result) {
	ctx, span := s.tracer.Start(ctx, "deletion.objects",
		trace.WithAttributes(attribute.String("identity.id", uid)))
	defer span.End()

	fail := func(id, key string, err error) {
		result.FailedObjects = append(result.FailedObjects, deletion.ObjectFailure{
			RecordID: id,
			Key:      key,
			Err:      err,
			Message:  err.Error(),
		})
		span.RecordError(err, trace.WithAttributes(
			attribute.String("deletion.record_id", id),
			attribute.String("object.key", key),
		))
		s.loggerFor(ctx).Warn("orphaned object", "identity", uid, "record", id, "key", key, "error", err)
	}

	for _, id := range ids {
		prefix := namespace.ReportObjectPrefix(uid, id)
		refs, err := s.objects.ListObjects(ctx, prefix)
		if err != nil {
			fail(id, "", fmt.Errorf("list objects %s: %w", prefix, err))
			continue
		}
		for _, ref := range refs {
			if err := s.objects.DeleteObject(ctx, ref); err != nil {
				fail(id, ref.Key, fmt.Errorf("delete object %s: %w", ref.Key, err))
				continue
			}
			result.DeletedObjects++
		}
	}

	span.SetAttributes(
		attribute.Int("deletion.objects_deleted", result.DeletedObjects),
		attribute.Int("deletion.objects_failed", len(result.FailedObjects)),
	)
	if n := len(result.FailedObjects); n > 0 {
		span.SetStatus(codes.Error, "orphaned objects")
		s.orphaned.Add(ctx, int64(n), metric.WithAttributes(attribute.String("identity.id", uid)))
	}
}
