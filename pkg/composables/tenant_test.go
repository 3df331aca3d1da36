package composables_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantcore/pkg/composables"
	"github.com/iota-uz/tenantcore/pkg/itf"
	"github.com/iota-uz/tenantcore/pkg/serrors"
)

func TestUseTenant_NoFrame(t *testing.T) {
	t.Parallel()

	_, err := composables.UseTenant(context.Background())
	require.ErrorIs(t, err, composables.ErrNoTenant)
	require.Equal(t, serrors.CodeTenantContextRequired, serrors.Code(err))
	require.Equal(t, 0, composables.FrameDepth(context.Background()))
}

func TestPushPopTenant_LIFO(t *testing.T) {
	t.Parallel()

	acme, globex := itf.NewTenant("acme"), itf.NewTenant("globex")

	ctx := composables.PushTenant(context.Background(), acme)
	ctx = composables.PushTenant(ctx, globex)
	require.Equal(t, 2, composables.FrameDepth(ctx))

	cur, err := composables.UseTenant(ctx)
	require.NoError(t, err)
	require.Equal(t, globex.ID(), cur.ID())

	ctx, err = composables.PopTenant(ctx)
	require.NoError(t, err)
	cur, err = composables.UseTenant(ctx)
	require.NoError(t, err)
	require.Equal(t, acme.ID(), cur.ID())

	ctx, err = composables.PopTenant(ctx)
	require.NoError(t, err)
	_, err = composables.UseTenant(ctx)
	require.ErrorIs(t, err, composables.ErrNoTenant)

	_, err = composables.PopTenant(ctx)
	require.ErrorIs(t, err, composables.ErrNoTenant)
}

func TestPushTenant_NilMasksOuter(t *testing.T) {
	t.Parallel()

	ctx := composables.PushTenant(context.Background(), itf.NewTenant("acme"))
	ctx = composables.PushTenant(ctx, nil)

	_, err := composables.UseTenantID(ctx)
	require.ErrorIs(t, err, composables.ErrNoTenant)
}

func TestRunScoped_RestoresAfterInnerFailure(t *testing.T) {
	t.Parallel()

	acme, globex := itf.NewTenant("acme"), itf.NewTenant("globex")
	boom := errors.New("boom")

	outer := composables.PushTenant(context.Background(), acme)
	err := composables.RunScoped(outer, acme, func(ctx context.Context) error {
		innerErr := composables.RunScoped(ctx, globex, func(inner context.Context) error {
			id, err := composables.UseTenantID(inner)
			require.NoError(t, err)
			require.Equal(t, globex.ID(), id)
			return boom
		})
		require.ErrorIs(t, innerErr, boom)

		id, err := composables.UseTenantID(ctx)
		require.NoError(t, err)
		require.Equal(t, acme.ID(), id)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, composables.FrameDepth(outer))
}

func TestRunScoped_PanicLeavesCallerUntouched(t *testing.T) {
	t.Parallel()

	acme := itf.NewTenant("acme")
	ctx := context.Background()

	require.PanicsWithValue(t, "kaboom", func() {
		_ = composables.RunScoped(ctx, acme, func(context.Context) error {
			panic("kaboom")
		})
	})
	_, err := composables.UseTenant(ctx)
	require.ErrorIs(t, err, composables.ErrNoTenant)
}

func TestRunScoped_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := composables.RunScoped(ctx, itf.NewTenant("acme"), func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestRunScoped_NilTenant(t *testing.T) {
	t.Parallel()

	err := composables.RunScoped(context.Background(), nil, func(context.Context) error { return nil })
	require.ErrorIs(t, err, composables.ErrNoTenant)
}

func TestRunScopedResult(t *testing.T) {
	t.Parallel()

	acme := itf.NewTenant("acme")
	got, err := composables.RunScopedResult(context.Background(), acme, func(ctx context.Context) (string, error) {
		cur, err := composables.UseTenant(ctx)
		if err != nil {
			return "", err
		}
		return cur.Identifier(), nil
	})
	require.NoError(t, err)
	require.Equal(t, "acme", got)
}

func TestRunScoped_ConcurrentScopesDoNotLeak(t *testing.T) {
	t.Parallel()

	tenants := []string{"acme", "globex", "initech", "umbrella"}
	errs := make(chan error, len(tenants)*50)
	base := context.Background()

	for _, ident := range tenants {
		tn := itf.NewTenant(ident)
		for i := 0; i < 50; i++ {
			go func() {
				errs <- composables.RunScoped(base, tn, func(ctx context.Context) error {
					cur, err := composables.UseTenant(ctx)
					if err != nil {
						return err
					}
					if cur.ID() != tn.ID() {
						return errors.New("tenant leaked across goroutines")
					}
					return nil
				})
			}()
		}
	}
	for i := 0; i < len(tenants)*50; i++ {
		require.NoError(t, <-errs)
	}
}
