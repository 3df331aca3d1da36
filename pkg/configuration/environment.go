package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantcore/pkg/logging"
)

const (
	Production  = "production"
	Development = "development"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the given env files from the working directory, falling back to the
// directory holding go.mod when none of them exist locally. It returns how many files were loaded.
func LoadEnv(envFiles []string) (int, error) {
	existing := existingFiles("", envFiles)
	if len(existing) == 0 {
		if root, ok := findModuleRoot(); ok {
			existing = existingFiles(root, envFiles)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func existingFiles(dir string, files []string) []string {
	out := make([]string, 0, len(files))
	for _, file := range files {
		path := file
		if dir != "" {
			path = filepath.Join(dir, file)
		}
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			out = append(out, path)
		}
	}
	return out
}

func findModuleRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"tenantcore"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"16"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type EncryptionOptions struct {
	// MasterSecret takes precedence over MasterSecretRef. Never log either.
	MasterSecret    string        `env:"ENCRYPTION_MASTER_SECRET"`
	MasterSecretRef string        `env:"ENCRYPTION_MASTER_SECRET_REF"`
	KDFIterations   int           `env:"ENCRYPTION_KDF_ITERATIONS" envDefault:"100000"`
	KeyCacheTTL     time.Duration `env:"ENCRYPTION_KEY_CACHE_TTL" envDefault:"15m"`
}

func (e *EncryptionOptions) Validate() error {
	if e.KDFIterations < 10000 {
		return fmt.Errorf("ENCRYPTION_KDF_ITERATIONS must be at least 10000, got %d", e.KDFIterations)
	}
	if e.KeyCacheTTL < 0 {
		return fmt.Errorf("ENCRYPTION_KEY_CACHE_TTL must be non-negative, got %s", e.KeyCacheTTL)
	}
	if e.MasterSecretRef != "" {
		if err := ValidateSecretRefFormat(e.MasterSecretRef); err != nil {
			return fmt.Errorf("ENCRYPTION_MASTER_SECRET_REF: %w", err)
		}
	}
	return nil
}

// Secret resolves the master secret from the inline value or the secret reference.
func (e *EncryptionOptions) Secret() ([]byte, error) {
	if e.MasterSecret != "" {
		return []byte(e.MasterSecret), nil
	}
	if e.MasterSecretRef == "" {
		return nil, ErrSecretRefEmpty
	}
	v, err := ResolveSecretRef(e.MasterSecretRef)
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}

type AuditOptions struct {
	RetentionDays int           `env:"AUDIT_RETENTION_DAYS" envDefault:"365"`
	PurgeInterval time.Duration `env:"AUDIT_PURGE_INTERVAL" envDefault:"24h"`
	BufferSize    int           `env:"AUDIT_BUFFER_SIZE" envDefault:"0"`
	FlushInterval time.Duration `env:"AUDIT_FLUSH_INTERVAL" envDefault:"2s"`
}

func (a *AuditOptions) Validate() error {
	if a.RetentionDays <= 0 {
		return fmt.Errorf("AUDIT_RETENTION_DAYS must be positive, got %d", a.RetentionDays)
	}
	if a.BufferSize < 0 {
		return fmt.Errorf("AUDIT_BUFFER_SIZE must be non-negative, got %d", a.BufferSize)
	}
	return nil
}

type TenancyOptions struct {
	BaseDomain       string        `env:"TENANCY_BASE_DOMAIN" envDefault:"localhost"`
	TokenSigningKey  string        `env:"TENANCY_TOKEN_SIGNING_KEY"`
	AllowQueryParam  bool          `env:"TENANCY_ALLOW_QUERY_PARAM" envDefault:"false"`
	RegistryCacheTTL time.Duration `env:"TENANCY_REGISTRY_CACHE_TTL" envDefault:"1m"`
	DataRequestSLA   time.Duration `env:"TENANCY_DATA_REQUEST_SLA" envDefault:"360h"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type Configuration struct {
	Database   DatabaseOptions
	Encryption EncryptionOptions
	Audit      AuditOptions
	Tenancy    TenancyOptions
	Prometheus PrometheusOptions

	RedisURL         string `env:"REDIS_URL"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/app.log"`
	// SDK will look for this header in the request, if it's not present, it will use request.RemoteAddr
	RealIPHeader string `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func (c *Configuration) IsProduction() bool {
	return c.GoAppEnvironment == Production
}

func (c *Configuration) IsDevelopment() bool {
	return c.GoAppEnvironment == Development
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger
	c.Database.Opts = c.Database.ConnectionString()
	return nil
}

func (c *Configuration) Validate() error {
	appEnv := strings.ToLower(strings.TrimSpace(c.GoAppEnvironment))
	switch appEnv {
	case Production, Development, "staging", "test":
	default:
		return fmt.Errorf("invalid GO_APP_ENV=%q (expected production|staging|development|test)", c.GoAppEnvironment)
	}
	c.GoAppEnvironment = appEnv

	if err := c.Encryption.Validate(); err != nil {
		return fmt.Errorf("encryption configuration error: %w", err)
	}
	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("audit configuration error: %w", err)
	}
	if c.Tenancy.AllowQueryParam && appEnv == Production {
		return fmt.Errorf("TENANCY_ALLOW_QUERY_PARAM cannot be enabled in production")
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
