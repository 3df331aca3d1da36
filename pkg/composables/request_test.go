package composables_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/principal"
	"github.com/iota-uz/tenantcore/pkg/composables"
	"github.com/iota-uz/tenantcore/pkg/itf"
)

func TestUseLogger_AddsTenantField(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	acme := itf.NewTenant("acme")
	ctx := composables.WithLogger(context.Background(), logrus.NewEntry(l))
	ctx = composables.PushTenant(ctx, acme)

	composables.UseLogger(ctx).Error("scoped")
	require.Contains(t, buf.String(), acme.ID().String())
}

func TestUseLogger_FallsBackToStandardLogger(t *testing.T) {
	t.Parallel()

	require.NotNil(t, composables.UseLogger(context.Background()))
}

func TestParams(t *testing.T) {
	t.Parallel()

	_, ok := composables.UseIP(context.Background())
	require.False(t, ok)

	ctx := composables.WithParams(context.Background(), &composables.Params{IP: "10.0.0.1", UserAgent: "curl/8"})
	ip, ok := composables.UseIP(ctx)
	require.True(t, ok)
	require.Equal(t, "10.0.0.1", ip)
	ua, ok := composables.UseUserAgent(ctx)
	require.True(t, ok)
	require.Equal(t, "curl/8", ua)
}

func TestUseActorID(t *testing.T) {
	t.Parallel()

	require.Nil(t, composables.UseActorID(context.Background()))

	userID := uuid.New()
	ctx := composables.WithPrincipal(context.Background(), principal.NewTenantPrincipal(userID, uuid.New(), "a@b.test"))
	got := composables.UseActorID(ctx)
	require.NotNil(t, got)
	require.Equal(t, userID, *got)

	ctx = composables.WithPrincipal(context.Background(), principal.NewSystemPrincipal("job"))
	require.Nil(t, composables.UseActorID(ctx))
}
