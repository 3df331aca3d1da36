package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "TENANTCORE_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "pkg", "tenantrepo")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	origWd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	require.NoError(t, os.Chdir(sub))

	_ = os.Unsetenv("TENANTCORE_TEST_ENV_LOAD")

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("TENANTCORE_TEST_ENV_LOAD"))
}

func TestConfiguration_Validate(t *testing.T) {
	valid := func() *Configuration {
		return &Configuration{
			GoAppEnvironment: "Development",
			Encryption:       EncryptionOptions{KDFIterations: 100000},
			Audit:            AuditOptions{RetentionDays: 30},
		}
	}

	c := valid()
	require.NoError(t, c.Validate())
	require.Equal(t, Development, c.GoAppEnvironment)

	c = valid()
	c.GoAppEnvironment = "moon"
	require.Error(t, c.Validate())

	c = valid()
	c.Encryption.KDFIterations = 10
	require.ErrorContains(t, c.Validate(), "ENCRYPTION_KDF_ITERATIONS")

	c = valid()
	c.Audit.RetentionDays = 0
	require.ErrorContains(t, c.Validate(), "AUDIT_RETENTION_DAYS")

	c = valid()
	c.GoAppEnvironment = Production
	c.Tenancy.AllowQueryParam = true
	require.ErrorContains(t, c.Validate(), "TENANCY_ALLOW_QUERY_PARAM")
}

func TestEncryptionOptions_Secret(t *testing.T) {
	t.Setenv("TENANTCORE_TEST_MASTER", "  s3cret-material  ")

	opts := EncryptionOptions{MasterSecretRef: "ENV:TENANTCORE_TEST_MASTER"}
	secret, err := opts.Secret()
	require.NoError(t, err)
	require.Equal(t, "s3cret-material", string(secret))

	opts = EncryptionOptions{MasterSecret: "inline", MasterSecretRef: "ENV:TENANTCORE_TEST_MASTER"}
	secret, err = opts.Secret()
	require.NoError(t, err)
	require.Equal(t, "inline", string(secret))

	_, err = (&EncryptionOptions{}).Secret()
	require.ErrorIs(t, err, ErrSecretRefEmpty)
}

func TestResolveSecretRef(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "master.key")
	requireWriteFile(t, path, "file-secret\n")

	v, err := ResolveSecretRef("FILE:" + path)
	require.NoError(t, err)
	require.Equal(t, "file-secret", v)

	_, err = ResolveSecretRef("FILE:relative/path")
	require.Error(t, err)

	_, err = ResolveSecretRef("VAULT:thing")
	require.ErrorIs(t, err, ErrSecretRefUnsupportedScheme)

	_, err = ResolveSecretRef("ENV:TENANTCORE_DOES_NOT_EXIST")
	require.ErrorIs(t, err, ErrSecretRefNotFound)

	_, err = ResolveSecretRef("FILE:" + filepath.Join(dir, "missing"))
	require.ErrorIs(t, err, ErrSecretRefNotFound)
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
