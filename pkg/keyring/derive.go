package keyring

import (
	"crypto/sha256"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

const (
	KeySize           = 32
	DefaultIterations = 100_000
	saltDomain        = "tenantcore/v1"
)

// Derive computes a tenant key from the master secret. The output depends only on the inputs, so
// every process sharing the secret derives the same bytes.
func Derive(secret []byte, tenantID uuid.UUID, version, iterations int) []byte {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return pbkdf2.Key(secret, salt(tenantID, version), iterations, KeySize, sha256.New)
}

func salt(tenantID uuid.UUID, version int) []byte {
	sum := sha256.Sum256([]byte(saltDomain + "|" + tenantID.String() + "|" + strconv.Itoa(version)))
	return sum[:]
}
