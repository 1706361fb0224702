// Package config assembles runtime configuration for the catalogue pipeline
// from environment variables (optionally seeded from a .env file) and an
// optional YAML overrides file used in local development.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment variable read by this process.
const EnvPrefix = "LANTERN_"

// Config is the resolved configuration for one invocation.
type Config struct {
	LogLevel     slog.Level `yaml:"-"`
	ParallelJobs int        `yaml:"parallel_jobs"`

	Sentry SentryConfig `yaml:"sentry"`
	Store  StoreConfig  `yaml:"store"`

	// ExportPath is the local directory the site is written to by export.
	ExportPath string `yaml:"export_path"`
	// BaseURL is the public origin of the deployed catalogue, e.g.
	// https://data.bas.ac.uk. Item URLs, alias hrefs and verification
	// targets are all derived from it.
	BaseURL string `yaml:"base_url"`

	AWS       AWSConfig       `yaml:"aws"`
	Search    SearchConfig    `yaml:"search"`
	Trusted   TrustedConfig   `yaml:"trusted"`
	AdminKeys AdminKeysConfig `yaml:"admin_keys"`
	Templates TemplatesConfig `yaml:"templates"`
	Verify    VerifyConfig    `yaml:"verify"`
}

// SentryConfig controls crash reporting.
type SentryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// StoreConfig locates the remote GitLab project holding record files and the
// local cache directory mirroring it.
type StoreConfig struct {
	Endpoint  string `yaml:"gitlab_endpoint"`
	Token     string `yaml:"gitlab_token"`
	ProjectID string `yaml:"gitlab_project_id"`
	Branch    string `yaml:"gitlab_branch"`
	CachePath string `yaml:"gitlab_cache_path"`
}

// AWSConfig holds object store settings.
type AWSConfig struct {
	S3Bucket     string `yaml:"s3_bucket"`
	AccessID     string `yaml:"access_id"`
	AccessSecret string `yaml:"access_secret"`
	Region       string `yaml:"region"`
}

// SearchConfig locates the public-website search sync API.
type SearchConfig struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
	PostType string `yaml:"post_type"`
}

// TrustedConfig locates the rsync target for item pages mirrored onto the
// trusted host. Publishing there is skipped when Host is unset.
type TrustedConfig struct {
	Host        string `yaml:"rsync_host"`
	Path        string `yaml:"rsync_path"`
	Environment string `yaml:"environment"`
}

// AdminKeysConfig carries the JWKs for the administrative metadata seal.
// EncryptionPrivate and SigningPublic are needed to read; SigningPrivate to
// write. Values are JWK JSON documents.
type AdminKeysConfig struct {
	EncryptionPrivate string `yaml:"encryption_key_private"`
	EncryptionPublic  string `yaml:"encryption_key_public"`
	SigningPublic     string `yaml:"signing_key_public"`
	SigningPrivate    string `yaml:"signing_key_private"`
}

// TemplatesConfig holds endpoints injected into rendered item pages.
type TemplatesConfig struct {
	PlausibleDomain         string `yaml:"plausible_domain"`
	ItemContactEndpoint     string `yaml:"item_contact_endpoint"`
	ItemMapsEndpoint        string `yaml:"item_maps_endpoint"`
	ItemVersionsEndpoint    string `yaml:"item_versions_endpoint"`
	ItemContactTurnstileKey string `yaml:"item_contact_turnstile_key"`
}

// VerifyConfig holds proxy endpoints used by distribution probes.
type VerifyConfig struct {
	SharePointProxyEndpoint string `yaml:"sharepoint_proxy_endpoint"`
	SANProxyEndpoint        string `yaml:"san_proxy_endpoint"`
}

// Load resolves configuration from the environment. A .env file in the
// working directory is read first without overriding existing variables,
// then lantern.yml overrides are applied if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:     parseLogLevel(getenv("LOG_LEVEL")),
		ParallelJobs: parseInt(getenv("PARALLEL_JOBS"), 1),
		Sentry: SentryConfig{
			Enabled:     parseBool(getenv("ENABLE_FEATURE_SENTRY")),
			DSN:         getenv("SENTRY_DSN"),
			Environment: getenv("SENTRY_ENVIRONMENT"),
		},
		Store: StoreConfig{
			Endpoint:  getenv("STORE_GITLAB_ENDPOINT"),
			Token:     getenv("STORE_GITLAB_TOKEN"),
			ProjectID: getenv("STORE_GITLAB_PROJECT_ID"),
			Branch:    getenv("STORE_GITLAB_BRANCH"),
			CachePath: getenv("STORE_GITLAB_CACHE_PATH"),
		},
		ExportPath: getenv("EXPORT_PATH"),
		BaseURL:    strings.TrimSuffix(getenv("BASE_URL"), "/"),
		AWS: AWSConfig{
			S3Bucket:     getenv("AWS_S3_BUCKET"),
			AccessID:     getenv("AWS_ACCESS_ID"),
			AccessSecret: getenv("AWS_ACCESS_SECRET"),
			Region:       defaulted(getenv("AWS_REGION"), "eu-west-1"),
		},
		Search: SearchConfig{
			Endpoint: getenv("SEARCH_ENDPOINT"),
			Token:    getenv("SEARCH_TOKEN"),
			PostType: defaulted(getenv("SEARCH_POST_TYPE"), "item"),
		},
		Trusted: TrustedConfig{
			Host:        getenv("TRUSTED_RSYNC_HOST"),
			Path:        getenv("TRUSTED_RSYNC_PATH"),
			Environment: defaulted(getenv("TRUSTED_ENVIRONMENT"), "testing"),
		},
		AdminKeys: AdminKeysConfig{
			EncryptionPrivate: getenv("ADMIN_METADATA_ENCRYPTION_KEY_PRIVATE"),
			EncryptionPublic:  getenv("ADMIN_METADATA_ENCRYPTION_KEY_PUBLIC"),
			SigningPublic:     getenv("ADMIN_METADATA_SIGNING_KEY_PUBLIC"),
			SigningPrivate:    getenv("ADMIN_METADATA_SIGNING_KEY_PRIVATE"),
		},
		Templates: TemplatesConfig{
			PlausibleDomain:         getenv("TEMPLATES_PLAUSIBLE_DOMAIN"),
			ItemContactEndpoint:     getenv("TEMPLATES_ITEM_CONTACT_ENDPOINT"),
			ItemMapsEndpoint:        getenv("TEMPLATES_ITEM_MAPS_ENDPOINT"),
			ItemVersionsEndpoint:    getenv("TEMPLATES_ITEM_VERSIONS_ENDPOINT"),
			ItemContactTurnstileKey: getenv("TEMPLATES_ITEM_CONTACT_TURNSTILE_KEY"),
		},
		Verify: VerifyConfig{
			SharePointProxyEndpoint: getenv("VERIFY_SHAREPOINT_PROXY_ENDPOINT"),
			SANProxyEndpoint:        getenv("VERIFY_SAN_PROXY_ENDPOINT"),
		},
	}

	if err := applyOverrides(cfg, "lantern.yml"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyOverrides merges a YAML overrides file into cfg when the file exists.
func applyOverrides(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read overrides file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse overrides file %s: %w", path, err)
	}
	return nil
}

// Validate checks settings every command depends on.
func (c *Config) Validate() error {
	if c.ParallelJobs < 1 {
		return fmt.Errorf("parallel jobs must be >= 1, got %d", c.ParallelJobs)
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("base URL %q is not an absolute URL", c.BaseURL)
		}
	}
	if c.Store.Endpoint != "" {
		if _, err := url.Parse(c.Store.Endpoint); err != nil {
			return fmt.Errorf("store endpoint %q: %w", c.Store.Endpoint, err)
		}
	}
	return nil
}

// CatalogueHost returns the host portion of the base URL, e.g. data.bas.ac.uk.
func (c *Config) CatalogueHost() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func getenv(key string) string {
	return os.Getenv(EnvPrefix + key)
}

func defaulted(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func parseInt(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func parseLogLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
