package serrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseError_IsMatchesByCode(t *testing.T) {
	t.Parallel()

	sentinel := NewError("PARTITION_NOT_FOUND", "partition not found", "")
	wrapped := fmt.Errorf("routing acme: %w", sentinel.WithMessage("partition tenant_acme not found"))

	require.ErrorIs(t, wrapped, sentinel)
	require.NotErrorIs(t, wrapped, NewError("NOT_FOUND", "not found", ""))
	require.Equal(t, "PARTITION_NOT_FOUND", Code(wrapped))
}

func TestBaseError_WithTemplateDataCopies(t *testing.T) {
	t.Parallel()

	base := NewError("AUTHZ_FORBIDDEN", "permission denied", "Authorization.PermissionDenied")
	withData := base.WithTemplateData(map[string]string{"object": "audit"})

	require.Nil(t, base.TemplateData)
	require.Equal(t, "audit", withData.TemplateData["object"])
	require.Equal(t, "", Code(errors.New("plain")))
}
