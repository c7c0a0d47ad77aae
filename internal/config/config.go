package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendLocal    = "local"
	BackendSupabase = "supabase"
)

type Config struct {
	Env        string `yaml:"env"`
	ListenAddr string `yaml:"listen_addr"`

	// Backend selects the data gateway: "local" (gorm) or "supabase".
	Backend         string `yaml:"backend"`
	SupabaseURL     string `yaml:"supabase_url"`
	SupabaseAnonKey string `yaml:"supabase_anon_key"`

	// DBDSN backs the local gateway and the device preference store.
	DBDSN     string        `yaml:"db_dsn"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`

	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	VoteLockTTL   time.Duration `yaml:"vote_lock_ttl"`

	// rabbitMQ
	RabbitURL         string        `yaml:"rabbit_url"`
	RabbitQueue       string        `yaml:"rabbit_queue"`
	WorkerConcurrency int           `yaml:"worker_concurrency"`
	WorkerMaxAttempts int           `yaml:"worker_max_attempts"`
	WorkerRetryDelay  time.Duration `yaml:"worker_retry_delay"`
	WorkerMetricsAddr string        `yaml:"worker_metrics_addr"`

	DeviceCookie       string `yaml:"device_cookie"`
	DeviceCookieSecure bool   `yaml:"device_cookie_secure"`
	MaxDevices         int    `yaml:"max_devices"`

	// CORSOrigins lists browser origins allowed to call the API with credentials.
	CORSOrigins []string `yaml:"cors_origins"`
}

func Load() Config {
	// DSN demo：
	// app:apppass@tcp(127.0.0.1:3306)/prompt_hub?charset=utf8mb4&parseTime=true&loc=Local
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = "file:prompt_hub.db?_pragma=foreign_keys(1)"
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-change-me"
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("BACKEND")))
	if backend == "" {
		backend = BackendLocal
	}

	listen := os.Getenv("LISTEN_ADDR")
	if listen == "" {
		listen = ":8080"
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	rabbitQueue := os.Getenv("RABBIT_QUEUE")
	if rabbitQueue == "" {
		rabbitQueue = "prompt_activity"
	}

	workers := 2
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			workers = n
		}
	}
	if workers > 50 {
		workers = 50
	}

	attempts := 5
	if v := os.Getenv("WORKER_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			attempts = n
		}
	}

	cookie := os.Getenv("DEVICE_COOKIE")
	if cookie == "" {
		cookie = "device_id"
	}

	maxDevices := 10000
	if v := os.Getenv("MAX_DEVICES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxDevices = n
		}
	}

	return Config{
		Env:        os.Getenv("APP_ENV"),
		ListenAddr: listen,

		Backend:         backend,
		SupabaseURL:     os.Getenv("SUPABASE_URL"),
		SupabaseAnonKey: os.Getenv("SUPABASE_ANON_KEY"),

		DBDSN:     dsn,
		JWTSecret: secret,
		TokenTTL:  durationEnv("TOKEN_TTL", time.Hour),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
		VoteLockTTL:   durationEnv("VOTE_LOCK_TTL", 10*time.Second),

		// empty URL disables publishing
		RabbitURL:         os.Getenv("RABBIT_URL"),
		RabbitQueue:       rabbitQueue,
		WorkerConcurrency: workers,
		WorkerMaxAttempts: attempts,
		WorkerRetryDelay:  durationEnv("WORKER_RETRY_DELAY", 2*time.Second),
		WorkerMetricsAddr: os.Getenv("WORKER_METRICS_ADDR"),

		DeviceCookie:       cookie,
		DeviceCookieSecure: os.Getenv("DEVICE_COOKIE_SECURE") == "true",
		MaxDevices:         maxDevices,

		CORSOrigins: splitList(os.Getenv("CORS_ORIGINS")),
	}
}

// LoadWithFile applies Load and then overlays the YAML file named by
// CONFIG_FILE, when set. Keys absent from the file keep their env value.
func LoadWithFile() (Config, error) {
	cfg := Load()
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks settings that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendLocal:
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
			return fmt.Errorf("backend %q requires SUPABASE_URL and SUPABASE_ANON_KEY", c.Backend)
		}
	default:
		return fmt.Errorf("unsupported BACKEND=%q", c.Backend)
	}
	return nil
}

func (c Config) IsDev() bool { return c.Env == "dev" }

func durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
