package services

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/pkg/logging"
)

const (
	HeaderTenantID  = "X-Tenant-ID"
	QueryParamName  = "tenant"
	claimTenantID   = "tenant_id"
	claimSubdomain  = "tenant_subdomain"
	bearerPrefix    = "bearer "
	ignoredSubLabel = "www"
)

// RequestSignal carries everything a request offers for identifying its tenant.
type RequestSignal struct {
	Header string
	Token  string
	Host   string
	Query  string
}

// RequestSignalFromHTTP collects the tenant header, bearer token, host and tenant query parameter.
func RequestSignalFromHTTP(r *http.Request) RequestSignal {
	sig := RequestSignal{
		Header: strings.TrimSpace(r.Header.Get(HeaderTenantID)),
		Host:   r.Host,
		Query:  strings.TrimSpace(r.URL.Query().Get(QueryParamName)),
	}
	if auth := r.Header.Get("Authorization"); len(auth) > len(bearerPrefix) && strings.EqualFold(auth[:len(bearerPrefix)], bearerPrefix) {
		sig.Token = strings.TrimSpace(auth[len(bearerPrefix):])
	}
	return sig
}

type ResolverOptions struct {
	// BaseDomain, when set, restricts subdomain resolution to hosts under it.
	BaseDomain      string
	TokenSigningKey []byte
	// AllowQueryParam enables the tenant query parameter. Only development sets it.
	AllowQueryParam bool
	Logger          *logrus.Entry
}

// Resolver maps a request signal to an active tenant.
type Resolver struct {
	tenants tenant.Repository
	opts    ResolverOptions
}

func NewResolver(tenants tenant.Repository, opts ResolverOptions) *Resolver {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	opts.BaseDomain = strings.ToLower(strings.Trim(opts.BaseDomain, ". "))
	return &Resolver{tenants: tenants, opts: opts}
}

type method struct {
	name string
	try  func(context.Context, RequestSignal) (*tenant.Tenant, error)
}

// Resolve tries the header, then the token claims, then the subdomain, then the query parameter.
// The first that yields an active tenant wins. ErrTenantRequired means the request carried no
// usable signal at all; ErrTenantNotFound means it did but nothing matched.
func (r *Resolver) Resolve(ctx context.Context, sig RequestSignal) (*tenant.Tenant, error) {
	methods := []method{
		{"header", r.fromHeader},
		{"token", r.fromToken},
		{"subdomain", r.fromHost},
	}
	if r.opts.AllowQueryParam {
		methods = append(methods, method{"query", r.fromQuery})
	}

	attempted := false
	for _, m := range methods {
		t, err := m.try(ctx, sig)
		if errors.Is(err, errNoSignal) {
			continue
		}
		attempted = true
		if err != nil {
			if !errors.Is(err, tenant.ErrNotFound) {
				r.opts.Logger.WithError(err).WithField("method", m.name).Warn("tenant resolution failed")
			}
			continue
		}
		if !t.IsActive() {
			r.opts.Logger.WithField("tenant_id", t.ID().String()).Info("inactive tenant not resolved")
			continue
		}
		getMetrics().resolutions.WithLabelValues(m.name).Inc()
		return t, nil
	}
	if !attempted {
		getMetrics().resolutions.WithLabelValues("missing").Inc()
		return nil, ErrTenantRequired
	}
	getMetrics().resolutions.WithLabelValues("unmatched").Inc()
	return nil, ErrTenantNotFound
}

var errNoSignal = errors.New("no signal")

func (r *Resolver) fromHeader(ctx context.Context, sig RequestSignal) (*tenant.Tenant, error) {
	if sig.Header == "" {
		return nil, errNoSignal
	}
	id, err := uuid.Parse(sig.Header)
	if err != nil {
		return nil, tenant.ErrNotFound
	}
	return r.tenants.GetByID(ctx, id)
}

func (r *Resolver) fromToken(ctx context.Context, sig RequestSignal) (*tenant.Tenant, error) {
	if sig.Token == "" || len(r.opts.TokenSigningKey) == 0 {
		return nil, errNoSignal
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(sig.Token, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return r.opts.TokenSigningKey, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "invalid tenant token")
	}
	if raw, ok := claims[claimTenantID].(string); ok && raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, tenant.ErrNotFound
		}
		return r.tenants.GetByID(ctx, id)
	}
	if sub, ok := claims[claimSubdomain].(string); ok && sub != "" {
		return r.tenants.GetByIdentifier(ctx, sub)
	}
	return nil, errNoSignal
}

func (r *Resolver) fromHost(ctx context.Context, sig RequestSignal) (*tenant.Tenant, error) {
	sub := r.Subdomain(sig.Host)
	if sub == "" {
		return nil, errNoSignal
	}
	return r.tenants.GetByIdentifier(ctx, sub)
}

func (r *Resolver) fromQuery(ctx context.Context, sig RequestSignal) (*tenant.Tenant, error) {
	if sig.Query == "" {
		return nil, errNoSignal
	}
	return r.tenants.GetByIdentifier(ctx, sig.Query)
}

// Subdomain returns the tenant label of host: everything before the last two labels, or before
// the base domain when one is configured. "www" and bare domains yield "".
func (r *Resolver) Subdomain(host string) string {
	host = normalizeHost(host)
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}
	var sub string
	if r.opts.BaseDomain != "" {
		suffix := "." + r.opts.BaseDomain
		if !strings.HasSuffix(host, suffix) {
			return ""
		}
		sub = strings.TrimSuffix(host, suffix)
	} else {
		labels := strings.Split(host, ".")
		if len(labels) < 3 {
			return ""
		}
		sub = strings.Join(labels[:len(labels)-2], ".")
	}
	sub = strings.TrimPrefix(sub, ignoredSubLabel+".")
	if sub == ignoredSubLabel || strings.Contains(sub, ".") {
		return ""
	}
	return sub
}

func normalizeHost(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(raw); err == nil {
		return strings.TrimSpace(h)
	}
	return raw
}
