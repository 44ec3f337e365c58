package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	config       = viper.New()
	configHolder atomic.Value
	backend      = "etcd3"
	backendAddr  = "http://127.0.0.1:2379"
	backendPath  = "/config/openpaws.yaml"
	configType   = "yaml"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	Log        struct {
		Level string `mapstructure:"LEVEL"`
		// Sampling keeps the first SAMPLE_INITIAL entries with the same
		// message each second, then every SAMPLE_THEREAFTER-th. Zero
		// disables sampling.
		SampleInitial    int `mapstructure:"SAMPLE_INITIAL"`
		SampleThereafter int `mapstructure:"SAMPLE_THEREAFTER"`
	} `mapstructure:"LOG"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Enable   bool   `mapstructure:"ENABLE"`
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Enable bool   `mapstructure:"ENABLE"`
		Addr   string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
		CORSOrigins  []string      `mapstructure:"CORS_ORIGINS"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		Metrics        bool   `mapstructure:"METRICS"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Auth struct {
		// JWT verifies tokens locally with JWTSecret; REMOTE asks the
		// identity provider for every request.
		Mode      string        `mapstructure:"MODE"`
		URL       string        `mapstructure:"URL"`
		AnonKey   string        `mapstructure:"ANON_KEY"`
		JWTSecret string        `mapstructure:"JWT_SECRET"`
		Audience  string        `mapstructure:"AUDIENCE"`
		Timeout   time.Duration `mapstructure:"TIMEOUT"`
	} `mapstructure:"AUTH"`
	Agent struct {
		WaitTimeout     time.Duration `mapstructure:"WAIT_TIMEOUT"`
		ExpireOnTimeout bool          `mapstructure:"EXPIRE_ON_TIMEOUT"`
		AutoReview      bool          `mapstructure:"AUTO_REVIEW"`
		ApproveRule     string        `mapstructure:"APPROVE_RULE"`
		SignalBackend   string        `mapstructure:"SIGNAL_BACKEND"`
	} `mapstructure:"AGENT"`
	LLM struct {
		BaseURL     string        `mapstructure:"BASE_URL"`
		APIKey      string        `mapstructure:"API_KEY"`
		Model       string        `mapstructure:"MODEL"`
		Temperature float64       `mapstructure:"TEMPERATURE"`
		MaxTokens   int           `mapstructure:"MAX_TOKENS"`
		Timeout     time.Duration `mapstructure:"TIMEOUT"`
		RateLimit   float64       `mapstructure:"RATE_LIMIT"`
	} `mapstructure:"LLM"`
	OAuth struct {
		RedirectBase string                   `mapstructure:"REDIRECT_BASE"`
		StateTTL     time.Duration            `mapstructure:"STATE_TTL"`
		Providers    map[string]OAuthProvider `mapstructure:"PROVIDERS"`
	} `mapstructure:"OAUTH"`
	Publisher struct {
		URL     string        `mapstructure:"URL"`
		Token   string        `mapstructure:"TOKEN"`
		Timeout time.Duration `mapstructure:"TIMEOUT"`
	} `mapstructure:"PUBLISHER"`
	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
	SecretAES string `mapstructure:"SECRET_AES"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Minio struct {
		Endpoint   string        `mapstructure:"ENDPOINT"`
		AccessKey  string        `mapstructure:"ACCESS_KEY"`
		SecretKey  string        `mapstructure:"SECRET_KEY"`
		Secure     bool          `mapstructure:"SECURE"`
		BucketName string        `mapstructure:"BUCKET_NAME"`
		URLExpiry  time.Duration `mapstructure:"URL_EXPIRY"`
	} `mapstructure:"MINIO"`
}

// OAuthProvider holds the client registration for one social platform.
type OAuthProvider struct {
	ClientID     string   `mapstructure:"CLIENT_ID"`
	ClientSecret string   `mapstructure:"CLIENT_SECRET"`
	AuthURL      string   `mapstructure:"AUTH_URL"`
	TokenURL     string   `mapstructure:"TOKEN_URL"`
	ProfileURL   string   `mapstructure:"PROFILE_URL"`
	Scopes       []string `mapstructure:"SCOPES"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))
var RemoteModule = fx.Module("remote.config", fx.Provide(LoadRemote))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "openpaws")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("LOG.LEVEL", "info")
	v.SetDefault("LOG.SAMPLE_INITIAL", 100)
	v.SetDefault("LOG.SAMPLE_THEREAFTER", 100)
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("GRPC_SERVER.ADDR", "9090")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("AUTH.MODE", "jwt")
	v.SetDefault("AUTH.AUDIENCE", "authenticated")
	v.SetDefault("AUTH.TIMEOUT", 5*time.Second)
	v.SetDefault("AGENT.WAIT_TIMEOUT", time.Hour)
	v.SetDefault("AGENT.AUTO_REVIEW", true)
	v.SetDefault("AGENT.APPROVE_RULE", "score >= 0.8")
	v.SetDefault("AGENT.SIGNAL_BACKEND", "memory")
	v.SetDefault("LLM.BASE_URL", "https://openrouter.ai/api/v1")
	v.SetDefault("LLM.MODEL", "openai/gpt-4o-mini")
	v.SetDefault("LLM.TEMPERATURE", 0.7)
	v.SetDefault("LLM.MAX_TOKENS", 1000)
	v.SetDefault("LLM.TIMEOUT", 60*time.Second)
	v.SetDefault("LLM.RATE_LIMIT", 5)
	v.SetDefault("OAUTH.STATE_TTL", 10*time.Minute)
	v.SetDefault("PUBLISHER.TIMEOUT", 30*time.Second)
	v.SetDefault("MINIO.URL_EXPIRY", 15*time.Minute)
}

func LoadConfig(p Params) *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()
	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			zap.L().Error("failed to read config file", zap.Error(err))
			os.Exit(1)
		}
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}

	if p.Vault != nil {
		applySecrets(p.Vault, &cfg)
	}

	return &cfg
}

func LoadRemote(p Params) *Config {
	if p.Vault == nil {
		zap.L().Error("vault can't provide")
		os.Exit(1)
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		backend = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok {
		backendAddr = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok {
		backendPath = v
	}

	setDefaults(config)
	config.SetConfigType(configType)
	if err := config.AddRemoteProvider(backend, backendAddr, backendPath); err != nil {
		os.Exit(1)
	}

	if err := config.ReadRemoteConfig(); err != nil {
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}
	applySecrets(p.Vault, &cfg)
	configHolder.Store(&cfg)

	go func() {
		for {
			time.Sleep(time.Second * 5)

			if err := config.WatchRemoteConfig(); err != nil {
				zap.L().Error("unable to read remote config", zap.Error(err))
				continue
			}

			var newcfg Config
			if err := config.Unmarshal(&newcfg); err != nil {
				zap.L().Error("unable to decode remote config", zap.Error(err))
				continue
			}
			applySecrets(p.Vault, &newcfg)
			configHolder.Store(&newcfg)
		}
	}()

	return &cfg
}

// Current returns the latest remote configuration, nil when the process
// was started from a local file.
func Current() *Config {
	cfg, _ := configHolder.Load().(*Config)
	return cfg
}

func applySecrets(client *vault.Client, cfg *Config) {
	ctx := context.Background()

	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("Success Get Secret")

	get := func(key string) string {
		if val, ok := secret.Data.Data[key].(string); ok {
			return val
		}
		return ""
	}

	set := func(dst *string, key string) {
		if v := get(key); v != "" {
			*dst = v
		}
	}

	set(&cfg.Database.User, "postgres_user")
	set(&cfg.Database.Password, "postgres_password")
	set(&cfg.Redis.Password, "redis_password")
	set(&cfg.SecretAES, "secret_aes")
	set(&cfg.Flagsmith.ApiKey, "flagsmith_api_key")
	set(&cfg.Auth.JWTSecret, "auth_jwt_secret")
	set(&cfg.LLM.APIKey, "llm_api_key")
	set(&cfg.Minio.SecretKey, "minio_secret_key")
	set(&cfg.Publisher.Token, "publisher_token")
	for name, provider := range cfg.OAuth.Providers {
		if v := get("oauth_" + name + "_client_secret"); v != "" {
			provider.ClientSecret = v
			cfg.OAuth.Providers[name] = provider
		}
	}
}
