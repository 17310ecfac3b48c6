package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"mailsync_server/pkg/apperr"

	"github.com/spf13/viper"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "mailsync"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string
	ProjectName string
	APIPrefix   string

	// Mailbox identity and Microsoft identity platform
	ClientID     string
	TenantID     string
	UserEmail    string
	GraphAPIURL  string
	GraphAuthURL string
	Scopes       []string

	// MongoDB
	MongoDBURL  string
	MongoDBName string

	// Redis (optional, cross-process sync lock)
	RedisURL string

	// Token cache
	TokenCacheBackend string // "file" or "keyring"
	TokenCacheFile    string
	KeyringDir        string
	KeyringPassword   string

	// Sync
	SyncInterval     time.Duration
	FetchLookback    time.Duration
	FetchPageSize    int
	GraphTimeout     time.Duration
	PersistWorkers   int
	SchedulerEnabled bool
	WorkerID         string

	// Outbound attachments are read from here by base name
	AttachmentDir string

	// CORS
	AllowedOrigins []string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Port:        v.GetString("PORT"),
		Environment: v.GetString("ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		ProjectName: v.GetString("PROJECT_NAME"),
		APIPrefix:   strings.TrimRight(v.GetString("API_V1_STR"), "/"),

		ClientID:     v.GetString("CLIENT_ID"),
		TenantID:     v.GetString("TENANT_ID"),
		UserEmail:    strings.TrimSpace(v.GetString("USER_EMAIL")),
		GraphAPIURL:  strings.TrimRight(v.GetString("MS_GRAPH_API_URL"), "/"),
		GraphAuthURL: strings.TrimRight(v.GetString("MS_GRAPH_AUTH_URL"), "/"),
		Scopes:       splitList(v.GetString("SCOPES")),

		MongoDBURL:  mongoURL(v),
		MongoDBName: v.GetString("DATABASE_NAME"),

		RedisURL: v.GetString("REDIS_URL"),

		TokenCacheBackend: strings.ToLower(v.GetString("TOKEN_CACHE_BACKEND")),
		TokenCacheFile:    v.GetString("TOKEN_CACHE_FILE"),
		KeyringDir:        v.GetString("KEYRING_DIR"),
		KeyringPassword:   v.GetString("KEYRING_PASSWORD"),

		SyncInterval:     time.Duration(v.GetInt("EMAIL_RETRIEVAL_INTERVAL_MINUTES")) * time.Minute,
		FetchLookback:    time.Duration(v.GetInt("FETCH_LOOKBACK_HOURS")) * time.Hour,
		FetchPageSize:    v.GetInt("FETCH_PAGE_SIZE"),
		GraphTimeout:     time.Duration(v.GetInt("GRAPH_TIMEOUT_SEC")) * time.Second,
		PersistWorkers:   v.GetInt("PERSIST_WORKERS"),
		SchedulerEnabled: v.GetBool("SCHEDULER_ENABLED"),
		WorkerID:         v.GetString("WORKER_ID"),

		AttachmentDir: v.GetString("ATTACHMENT_DIR"),

		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("PROJECT_NAME", "mailsync")
	v.SetDefault("API_V1_STR", "/api/v1")

	v.SetDefault("TENANT_ID", "consumers")
	v.SetDefault("MS_GRAPH_API_URL", "https://graph.microsoft.com/v1.0/me")
	v.SetDefault("MS_GRAPH_AUTH_URL", "https://login.microsoftonline.com")
	v.SetDefault("SCOPES", "https://graph.microsoft.com/User.Read,https://graph.microsoft.com/Mail.Read,https://graph.microsoft.com/Mail.Send,offline_access")

	v.SetDefault("MONGO_SERVER_ADDRESS", "localhost")
	v.SetDefault("MONGO_SERVER_PORT", "27017")
	v.SetDefault("DATABASE_NAME", "email_service")

	v.SetDefault("TOKEN_CACHE_BACKEND", "file")
	v.SetDefault("TOKEN_CACHE_FILE", "token_cache.json")
	v.SetDefault("KEYRING_DIR", "~/.config/mailsync/credentials")

	v.SetDefault("EMAIL_RETRIEVAL_INTERVAL_MINUTES", 5)
	v.SetDefault("FETCH_LOOKBACK_HOURS", 24)
	v.SetDefault("FETCH_PAGE_SIZE", 50)
	v.SetDefault("GRAPH_TIMEOUT_SEC", 60)
	v.SetDefault("PERSIST_WORKERS", 4)
	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("WORKER_ID", generateWorkerID())

	v.SetDefault("ALLOWED_ORIGINS", "*")
}

// mongoURL prefers MONGODB_URL and otherwise composes one from its parts.
func mongoURL(v *viper.Viper) string {
	if raw := v.GetString("MONGODB_URL"); raw != "" {
		return raw
	}

	host := v.GetString("MONGO_SERVER_ADDRESS") + ":" + v.GetString("MONGO_SERVER_PORT")
	u := url.URL{Scheme: "mongodb", Host: host}
	if user := v.GetString("MONGO_AUTH_USERNAME"); user != "" {
		u.User = url.UserPassword(user, v.GetString("MONGO_AUTH_PASSWORD"))
	}
	return u.String()
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks required settings.
func (c *Config) Validate() error {
	switch {
	case c.ClientID == "":
		return apperr.ConfigError("CLIENT_ID is required")
	case c.UserEmail == "":
		return apperr.ConfigError("USER_EMAIL is required")
	case len(c.Scopes) == 0:
		return apperr.ConfigError("SCOPES must list at least one scope")
	case c.SyncInterval <= 0:
		return apperr.ConfigError("EMAIL_RETRIEVAL_INTERVAL_MINUTES must be positive")
	case c.TokenCacheBackend != "file" && c.TokenCacheBackend != "keyring":
		return apperr.ConfigError(fmt.Sprintf("unknown TOKEN_CACHE_BACKEND %q", c.TokenCacheBackend))
	case c.TokenCacheBackend == "keyring" && c.KeyringPassword == "":
		return apperr.ConfigError("KEYRING_PASSWORD is required when TOKEN_CACHE_BACKEND=keyring")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
