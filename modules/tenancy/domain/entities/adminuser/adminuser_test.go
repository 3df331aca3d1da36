package adminuser

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNew_HashesPassword(t *testing.T) {
	u, err := New(uuid.New(), "  Admin@Acme.TEST ", "correct horse 42")
	require.NoError(t, err)
	require.Equal(t, "admin@acme.test", u.Email)
	require.NotContains(t, u.PasswordHash, "correct horse")
	require.True(t, u.Active)

	require.NoError(t, u.CheckPassword("correct horse 42"))
	require.ErrorIs(t, u.CheckPassword("wrong"), ErrInvalidPassword)
}
