package composables_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantcore/pkg/composables"
	"github.com/iota-uz/tenantcore/pkg/itf"
)

func TestUseTx_NoTxNoPool(t *testing.T) {
	t.Parallel()

	_, err := composables.UseTx(context.Background())
	require.ErrorIs(t, err, composables.ErrNoPool)

	_, err = composables.UseOpenTx(context.Background())
	require.ErrorIs(t, err, composables.ErrNoTx)
}

func TestRunInTx_CommitsOnSuccess(t *testing.T) {
	t.Parallel()

	tx := &itf.StubTx{}
	err := composables.RunInTx(context.Background(), &itf.StubBeginner{Tx: tx}, func(ctx context.Context) error {
		got, err := composables.UseTx(ctx)
		require.NoError(t, err)
		require.Same(t, tx, got)
		return nil
	})
	require.NoError(t, err)
	require.True(t, tx.Committed())
	require.False(t, tx.RolledBack())
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	t.Parallel()

	tx := &itf.StubTx{}
	boom := errors.New("boom")
	err := composables.RunInTx(context.Background(), &itf.StubBeginner{Tx: tx}, func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.True(t, tx.RolledBack())
}

func TestRunInTx_RollsBackOnPanic(t *testing.T) {
	t.Parallel()

	tx := &itf.StubTx{}
	require.Panics(t, func() {
		_ = composables.RunInTx(context.Background(), &itf.StubBeginner{Tx: tx}, func(context.Context) error {
			panic("boom")
		})
	})
	require.True(t, tx.RolledBack())
}
