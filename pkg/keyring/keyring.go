package keyring

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/iota-uz/tenantcore/modules/audit/domain/entities/event"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/pkg/composables"
	"github.com/iota-uz/tenantcore/pkg/logging"
	"github.com/iota-uz/tenantcore/pkg/serrors"
)

const blobFormat byte = 0x01

const headerSize = 1 + 4

var (
	ErrDecryptionFailed      = serrors.NewError(serrors.CodeDecryptionFailed, "decryption failed", "Errors.DecryptionFailed")
	ErrTenantContextRequired = serrors.NewError(serrors.CodeTenantContextRequired, "encryption requires a tenant", "Errors.TenantContextRequired")
	ErrEmptySecret           = fmt.Errorf("keyring: master secret is empty")
)

// VersionStore is the part of the tenant registry the keyring depends on.
type VersionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error)
	BumpKeyVersion(ctx context.Context, id uuid.UUID) (int, error)
}

type Options struct {
	Iterations int
	CacheTTL   time.Duration
	// Development makes a missing tenant panic instead of returning ErrTenantContextRequired.
	Development bool
	Recorder    event.Recorder
	Logger      *logrus.Entry
	Now         func() time.Time
}

func (o *Options) setDefaults() {
	if o.Iterations <= 0 {
		o.Iterations = DefaultIterations
	}
	if o.CacheTTL == 0 {
		o.CacheTTL = 15 * time.Minute
	}
	if o.Recorder == nil {
		o.Recorder = event.NopRecorder
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type cacheEntry struct {
	version   int
	key       []byte
	aead      cipher.AEAD
	expiresAt time.Time
}

// Service derives, caches and rotates per-tenant keys and encrypts with them.
type Service struct {
	secret   []byte
	versions VersionStore
	opts     Options

	mu    sync.RWMutex
	cache map[uuid.UUID]cacheEntry
}

func New(secret []byte, versions VersionStore, opts Options) (*Service, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	opts.setDefaults()
	return &Service{
		secret:   append([]byte(nil), secret...),
		versions: versions,
		opts:     opts,
		cache:    make(map[uuid.UUID]cacheEntry),
	}, nil
}

// DeriveKey returns the current key of tenantID.
func (s *Service) DeriveKey(ctx context.Context, tenantID uuid.UUID) ([]byte, error) {
	if err := s.requireTenant(tenantID); err != nil {
		return nil, err
	}
	e, err := s.current(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), e.key...), nil
}

// Encrypt seals plaintext under tenantID's current key, binding the ciphertext to the tenant. The
// key version is confirmed against the registry first, so a rotation made by another process is
// never sealed over with the superseded key.
func (s *Service) Encrypt(ctx context.Context, plaintext []byte, tenantID uuid.UUID) (string, error) {
	if err := s.requireTenant(tenantID); err != nil {
		return "", err
	}
	e, err := s.verified(ctx, tenantID)
	if err != nil {
		return "", err
	}

	buf := make([]byte, headerSize+chacha20poly1305.NonceSizeX, headerSize+chacha20poly1305.NonceSizeX+len(plaintext)+chacha20poly1305.Overhead)
	buf[0] = blobFormat
	binary.BigEndian.PutUint32(buf[1:headerSize], uint32(e.version))
	nonce := buf[headerSize:]
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("keyring: nonce: %w", err)
	}
	sealed := e.aead.Seal(buf, nonce, plaintext, additionalData(tenantID, buf[:headerSize]))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt for the same tenant. Every failure, including a key
// version other than the current one, yields ErrDecryptionFailed.
func (s *Service) Decrypt(ctx context.Context, blob string, tenantID uuid.UUID) ([]byte, error) {
	if err := s.requireTenant(tenantID); err != nil {
		return nil, err
	}
	e, err := s.current(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	raw, err := base64.RawURLEncoding.DecodeString(blob)
	if err != nil || len(raw) < headerSize+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead || raw[0] != blobFormat {
		return nil, s.decryptFailed(tenantID, "malformed blob")
	}
	version := int(binary.BigEndian.Uint32(raw[1:headerSize]))
	if version > e.version {
		// Sealed after a rotation this process has not seen yet.
		if e, err = s.verified(ctx, tenantID); err != nil {
			return nil, err
		}
	}
	if version != e.version {
		return nil, s.decryptFailed(tenantID, "stale key version")
	}
	nonce := raw[headerSize : headerSize+chacha20poly1305.NonceSizeX]
	plaintext, err := e.aead.Open(nil, nonce, raw[headerSize+chacha20poly1305.NonceSizeX:], additionalData(tenantID, raw[:headerSize]))
	if err != nil {
		return nil, s.decryptFailed(tenantID, "authentication failed")
	}
	return plaintext, nil
}

// RotateKey moves tenantID to a new key version. Data sealed under earlier versions can no longer
// be decrypted.
func (s *Service) RotateKey(ctx context.Context, tenantID uuid.UUID) (int, error) {
	if err := s.requireTenant(tenantID); err != nil {
		return 0, err
	}
	t, err := s.versions.GetByID(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	next, err := s.versions.BumpKeyVersion(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	s.Evict(tenantID)
	getMetrics().rotations.Inc()

	s.opts.Logger.WithFields(logrus.Fields{
		"tenant_id":    tenantID.String(),
		"from_version": t.KeyVersion(),
		"to_version":   next,
	}).Warn("tenant encryption key rotated; data sealed under the previous key is no longer readable")

	s.opts.Recorder.Record(composables.PushTenant(ctx, t), event.Event{
		Type:         event.TypeSecurityEvent,
		ResourceType: "tenant_key",
		ResourceID:   tenantID.String(),
		Success:      true,
		Before:       map[string]any{"key_version": t.KeyVersion()},
		After:        map[string]any{"key_version": next},
		IsSensitive:  true,
	})
	return next, nil
}

// Evict drops any cached key for tenantID.
func (s *Service) Evict(tenantID uuid.UUID) {
	s.mu.Lock()
	delete(s.cache, tenantID)
	s.mu.Unlock()
}

func (s *Service) current(ctx context.Context, tenantID uuid.UUID) (cacheEntry, error) {
	now := s.opts.Now()
	s.mu.RLock()
	e, ok := s.cache[tenantID]
	s.mu.RUnlock()
	if ok && now.Before(e.expiresAt) {
		getMetrics().cacheLookups.WithLabelValues("hit").Inc()
		return e, nil
	}
	getMetrics().cacheLookups.WithLabelValues("miss").Inc()

	t, err := s.versions.GetByID(ctx, tenantID)
	if err != nil {
		return cacheEntry{}, err
	}
	return s.derive(tenantID, t.KeyVersion(), now)
}

// verified returns the key of the version the registry holds now. The cached derivation is reused
// while it still matches that version.
func (s *Service) verified(ctx context.Context, tenantID uuid.UUID) (cacheEntry, error) {
	t, err := s.versions.GetByID(ctx, tenantID)
	if err != nil {
		return cacheEntry{}, err
	}
	now := s.opts.Now()
	s.mu.RLock()
	e, ok := s.cache[tenantID]
	s.mu.RUnlock()
	if ok && e.version == t.KeyVersion() && now.Before(e.expiresAt) {
		getMetrics().cacheLookups.WithLabelValues("hit").Inc()
		return e, nil
	}
	getMetrics().cacheLookups.WithLabelValues("miss").Inc()
	return s.derive(tenantID, t.KeyVersion(), now)
}

func (s *Service) derive(tenantID uuid.UUID, version int, now time.Time) (cacheEntry, error) {
	key := Derive(s.secret, tenantID, version, s.opts.Iterations)
	getMetrics().derivations.Inc()
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return cacheEntry{}, err
	}
	e := cacheEntry{
		version:   version,
		key:       key,
		aead:      aead,
		expiresAt: now.Add(s.opts.CacheTTL),
	}
	if s.opts.CacheTTL > 0 {
		s.mu.Lock()
		s.cache[tenantID] = e
		s.mu.Unlock()
	}
	return e, nil
}

func (s *Service) requireTenant(tenantID uuid.UUID) error {
	if tenantID != uuid.Nil {
		return nil
	}
	if s.opts.Development {
		panic(ErrTenantContextRequired)
	}
	return ErrTenantContextRequired
}

func (s *Service) decryptFailed(tenantID uuid.UUID, reason string) error {
	getMetrics().decryptFails.Inc()
	s.opts.Logger.WithFields(logrus.Fields{"tenant_id": tenantID.String(), "reason": reason}).Debug("decrypt failed")
	return ErrDecryptionFailed
}

func additionalData(tenantID uuid.UUID, header []byte) []byte {
	ad := make([]byte, 0, len(tenantID)+len(header))
	ad = append(ad, tenantID[:]...)
	return append(ad, header...)
}
