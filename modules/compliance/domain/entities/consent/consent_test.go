package consent

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNew_NormalizesCategories(t *testing.T) {
	c := New("customer", uuid.New(), "treatment", []string{"health", "contact", "health"})
	require.Equal(t, []string{"contact", "health"}, c.DataCategories)
	require.True(t, c.Active())
	require.NotNil(t, c.GrantedAt)
}

func TestCovers(t *testing.T) {
	c := New("customer", uuid.New(), "treatment", []string{"health"})
	require.True(t, c.Covers("health"))
	require.False(t, c.Covers("personal_notes"))

	c.Revoke(time.Now())
	require.False(t, c.Active())
	require.False(t, c.Covers("health"))
}
