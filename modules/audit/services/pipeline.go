package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/wI2L/jsondiff"

	"github.com/iota-uz/tenantcore/modules/audit/domain/entities/event"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/principal"
	"github.com/iota-uz/tenantcore/pkg/composables"
	"github.com/iota-uz/tenantcore/pkg/logging"
	"github.com/iota-uz/tenantcore/pkg/serrors"
)

var ErrAuditForbidden = serrors.NewError(serrors.CodeAuditForbidden, "not allowed to access this tenant's audit trail", "Errors.AuditForbidden")

// Sink persists events. event.Repository and BufferedSink both satisfy it.
type Sink interface {
	Append(ctx context.Context, events ...event.Event) error
}

type PipelineOptions struct {
	// RetentionDays applies to events recorded without their own retention.
	RetentionDays int
	Logger        *logrus.Entry
	Now           func() time.Time
}

// Pipeline attributes events to the tenant in context and hands them to the sink. Recording never
// fails the caller.
type Pipeline struct {
	sink   Sink
	store  event.Repository
	opts   PipelineOptions
	logger *logrus.Entry
}

// NewPipeline records into sink and answers queries and purges from store. Pass the same
// repository for both when no buffering is wanted.
func NewPipeline(sink Sink, store event.Repository, opts PipelineOptions) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		sink:   sink,
		store:  store,
		opts:   opts,
		logger: opts.Logger.WithField("component", "audit"),
	}
}

func (p *Pipeline) Record(ctx context.Context, e event.Event) {
	m := getMetrics()
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		m.events.WithLabelValues("dropped").Inc()
		p.logger.WithFields(logrus.Fields{
			"event_type": e.Type,
			"resource":   e.ResourceType,
		}).Warn("audit event without tenant dropped")
		return
	}

	e.TenantID = tenantID
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = p.opts.Now()
	}
	if e.ActorID == nil {
		e.ActorID = composables.UseActorID(ctx)
	}
	if params, ok := composables.UseParams(ctx); ok {
		if e.IP == "" {
			e.IP = params.IP
		}
		if e.UserAgent == "" {
			e.UserAgent = params.UserAgent
		}
	}
	if e.RetentionDays == 0 {
		e.RetentionDays = p.opts.RetentionDays
	}
	if len(e.Changes) == 0 && (e.Before != nil || e.After != nil) {
		changes, err := diff(e.Before, e.After)
		if err != nil {
			p.logger.WithError(err).WithField("resource", e.ResourceType).Warn("audit diff failed")
		} else {
			e.Changes = changes
		}
	}

	if err := p.sink.Append(context.WithoutCancel(ctx), e); err != nil {
		m.events.WithLabelValues("failed").Inc()
		p.logger.WithError(err).WithFields(logrus.Fields{
			"tenant_id":  tenantID.String(),
			"event_type": e.Type,
			"resource":   e.ResourceType,
		}).Error("failed to persist audit event")
		return
	}
	m.events.WithLabelValues("recorded").Inc()
}

// diff returns the RFC 6902 patch turning before into after. A nil side counts as an empty object.
func diff(before, after map[string]any) (json.RawMessage, error) {
	if before == nil {
		before = map[string]any{}
	}
	if after == nil {
		after = map[string]any{}
	}
	patch, err := jsondiff.Compare(before, after)
	if err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, nil
	}
	return json.Marshal(patch)
}

// Query lists tenantID's events. Tenant principals may only read their own tenant; reading any
// other requires the cross-tenant audit capability.
func (p *Pipeline) Query(ctx context.Context, tenantID uuid.UUID, params *event.FindParams) ([]event.Event, error) {
	if err := authorizeRead(ctx, tenantID); err != nil {
		return nil, err
	}
	return p.store.List(ctx, tenantID, params)
}

func (p *Pipeline) Count(ctx context.Context, tenantID uuid.UUID, params *event.FindParams) (int64, error) {
	if err := authorizeRead(ctx, tenantID); err != nil {
		return 0, err
	}
	return p.store.Count(ctx, tenantID, params)
}

func authorizeRead(ctx context.Context, tenantID uuid.UUID) error {
	pr, ok := composables.UsePrincipal(ctx)
	if !ok {
		return ErrAuditForbidden
	}
	if pr.Can(principal.CapabilityCrossTenantAudit) {
		return nil
	}
	if own, bound := pr.TenantID(); bound && own == tenantID && pr.Can(principal.CapabilityAuditRead) {
		return nil
	}
	return ErrAuditForbidden
}

func authorizePurge(ctx context.Context, tenantID uuid.UUID) error {
	pr, ok := composables.UsePrincipal(ctx)
	if !ok || !principal.CanAccessTenant(pr, tenantID, principal.CapabilityAuditPurge) {
		return ErrAuditForbidden
	}
	return nil
}

// PurgeOlderThan deletes tenantID's events recorded before cutoff.
func (p *Pipeline) PurgeOlderThan(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int64, error) {
	if err := authorizePurge(ctx, tenantID); err != nil {
		return 0, err
	}
	n, err := p.store.PurgeOlderThan(ctx, tenantID, cutoff)
	if err != nil {
		return 0, errors.Wrapf(err, "purge audit events of %s", tenantID)
	}
	getMetrics().purged.WithLabelValues("cutoff").Add(float64(n))
	return n, nil
}

// PurgeExpired deletes tenantID's events whose retention ended before now.
func (p *Pipeline) PurgeExpired(ctx context.Context, tenantID uuid.UUID, now time.Time) (int64, error) {
	if err := authorizePurge(ctx, tenantID); err != nil {
		return 0, err
	}
	n, err := p.store.PurgeExpired(ctx, tenantID, now)
	if err != nil {
		return 0, errors.Wrapf(err, "purge expired audit events of %s", tenantID)
	}
	getMetrics().purged.WithLabelValues("expired").Add(float64(n))
	return n, nil
}
