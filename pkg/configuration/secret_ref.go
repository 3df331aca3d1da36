package configuration

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrSecretRefEmpty             = errors.New("secret_ref is empty")
	ErrSecretRefUnsupportedScheme = errors.New("unsupported secret_ref scheme")
	ErrSecretRefNotFound          = errors.New("secret_ref not found")
	ErrSecretRefInvalidValue      = errors.New("secret_ref resolved to invalid value")
)

// ValidateSecretRefFormat accepts "ENV:<NAME>" and "FILE:<absolute path>".
func ValidateSecretRefFormat(ref string) error {
	_, _, err := parseSecretRef(ref)
	return err
}

func ResolveSecretRef(ref string) (string, error) {
	scheme, target, err := parseSecretRef(ref)
	if err != nil {
		return "", err
	}
	switch scheme {
	case "ENV":
		v, ok := os.LookupEnv(target)
		if !ok {
			return "", ErrSecretRefNotFound
		}
		return validateSecretValue(v)
	default:
		b, err := os.ReadFile(target)
		if err != nil {
			if os.IsNotExist(err) {
				return "", ErrSecretRefNotFound
			}
			return "", errors.Wrap(err, "failed to read secret_ref file")
		}
		return validateSecretValue(string(b))
	}
}

func parseSecretRef(ref string) (string, string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", ErrSecretRefEmpty
	}
	switch {
	case strings.HasPrefix(ref, "ENV:"):
		name := strings.TrimSpace(strings.TrimPrefix(ref, "ENV:"))
		if name == "" {
			return "", "", ErrSecretRefEmpty
		}
		return "ENV", name, nil
	case strings.HasPrefix(ref, "FILE:"):
		path := strings.TrimSpace(strings.TrimPrefix(ref, "FILE:"))
		if path == "" {
			return "", "", ErrSecretRefEmpty
		}
		if !filepath.IsAbs(path) {
			return "", "", errors.New("FILE: secret_ref must be an absolute path")
		}
		return "FILE", path, nil
	default:
		return "", "", ErrSecretRefUnsupportedScheme
	}
}

func validateSecretValue(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", ErrSecretRefInvalidValue
	}
	if strings.ContainsAny(v, "\n\r") {
		return "", ErrSecretRefInvalidValue
	}
	return v, nil
}
