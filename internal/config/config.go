package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr        string
	DatabaseURL string
	RedisURL    string
	ReposDir    string
	CORSOrigin  string
	// EIPsPath points at an eips.json overriding the bundled dataset.
	EIPsPath string

	MeiliURL       string
	MeiliMasterKey string

	GitHubAPI   string
	GitHubToken string
	CacheTTL    time.Duration

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	LogLevel  string
	LogFormat string
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8787")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("repos_dir", "./data/repos")
	v.SetDefault("cors_origin", "*")
	v.SetDefault("eips_path", "")
	v.SetDefault("meili_url", "")
	v.SetDefault("meili_master_key", "")
	v.SetDefault("github_api", "https://api.github.com")
	v.SetDefault("github_token", "")
	v.SetDefault("cache_ttl", 15*time.Minute)
	v.SetDefault("minio_endpoint", "")
	v.SetDefault("minio_access_key", "")
	v.SetDefault("minio_secret_key", "")
	v.SetDefault("minio_bucket", "forkcast-exports")
	v.SetDefault("minio_use_ssl", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// New returns a viper instance reading FORKCAST_* environment variables and,
// when file is set, a config file.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("FORKCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return v, nil
}

// Load builds a Config from environment and the optional file.
func Load(file string) (Config, error) {
	v, err := New(file)
	if err != nil {
		return Config{}, err
	}
	return FromViper(v), nil
}

func FromViper(v *viper.Viper) Config {
	return Config{
		Addr:           v.GetString("addr"),
		DatabaseURL:    v.GetString("database_url"),
		RedisURL:       v.GetString("redis_url"),
		ReposDir:       v.GetString("repos_dir"),
		CORSOrigin:     v.GetString("cors_origin"),
		EIPsPath:       v.GetString("eips_path"),
		MeiliURL:       v.GetString("meili_url"),
		MeiliMasterKey: v.GetString("meili_master_key"),
		GitHubAPI:      v.GetString("github_api"),
		GitHubToken:    v.GetString("github_token"),
		CacheTTL:       v.GetDuration("cache_ttl"),
		MinioEndpoint:  v.GetString("minio_endpoint"),
		MinioAccessKey: v.GetString("minio_access_key"),
		MinioSecretKey: v.GetString("minio_secret_key"),
		MinioBucket:    v.GetString("minio_bucket"),
		MinioUseSSL:    v.GetBool("minio_use_ssl"),
		LogLevel:       v.GetString("log_level"),
		LogFormat:      v.GetString("log_format"),
	}
}

// DraftsEnabled reports whether a database is configured. Without one the
// draft and history routes answer 503.
func (c Config) DraftsEnabled() bool {
	return c.DatabaseURL != ""
}
