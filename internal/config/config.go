package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderConfig is one external provider entry, validated once at startup
// and passed by reference into the failover engine.
type ProviderConfig struct {
	Name     string
	Endpoint string
	Keys     []string
	Model    string
	Timeout  time.Duration
}

// QueueConfig bounds one queue class.
type QueueConfig struct {
	Workers int
	Depth   int

	// Per-stage ceilings for jobs routed to this class.
	STTTimeout     time.Duration
	ExtractTimeout time.Duration
	EmbedTimeout   time.Duration
}

// BlobConfig describes the external blob store the core signs URLs for.
type BlobConfig struct {
	Endpoint  string
	Bucket    string
	Secret    string
	UploadTTL time.Duration
}

type BillingConfig struct {
	PricePerMinuteCents int64
}

type LinkerConfig struct {
	TopN      int
	Threshold float64
}

type Config struct {
	Port        string
	DatabaseURL string
	AuthSecret  string

	Blob BlobConfig

	// SHORT/LONG boundary for the cheap size heuristic.
	ShortMaxBytes   int64
	ShortMaxSeconds float64

	STTPrimary   ProviderConfig
	STTSecondary ProviderConfig
	Completion   ProviderConfig
	Embedding    ProviderConfig

	ShortQueue    QueueConfig
	LongQueue     QueueConfig
	OverflowQueue QueueConfig

	Billing BillingConfig
	Linker  LinkerConfig

	// Requeue ceiling for DELAYED jobs before they go FAILED.
	MaxJobAttempts int

	CleanupInterval time.Duration
}

// Load reads the full configuration from the environment and validates it
// once. Callers pass the result by reference; nothing re-reads env at call
// time.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getenv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		AuthSecret:  os.Getenv("AUTH_SECRET"),
		Blob: BlobConfig{
			Endpoint:  os.Getenv("BLOB_ENDPOINT"),
			Bucket:    getenv("BLOB_BUCKET", "voice-inbox"),
			Secret:    os.Getenv("BLOB_SIGNING_SECRET"),
			UploadTTL: getduration("BLOB_UPLOAD_TTL", 15*time.Minute),
		},
		ShortMaxBytes:   getint64("SHORT_MAX_BYTES", 2<<20),
		ShortMaxSeconds: 120,
		STTPrimary: ProviderConfig{
			Name:     "deepgram",
			Endpoint: getenv("DEEPGRAM_ENDPOINT", "https://api.deepgram.com/v1/listen"),
			Keys:     splitKeys(os.Getenv("DEEPGRAM_API_KEYS")),
			Model:    getenv("DEEPGRAM_MODEL", "nova-2"),
			Timeout:  getduration("DEEPGRAM_TIMEOUT", 60*time.Second),
		},
		STTSecondary: ProviderConfig{
			Name:     "yandex",
			Endpoint: getenv("YANDEX_STT_ENDPOINT", "https://stt.api.cloud.yandex.net/speech/v1/stt:recognize"),
			Keys:     splitKeys(os.Getenv("YANDEX_SPEECHKIT_API_KEYS")),
			Model:    "general",
			Timeout:  getduration("YANDEX_STT_TIMEOUT", 60*time.Second),
		},
		Completion: ProviderConfig{
			Name:     "openrouter",
			Endpoint: getenv("OPENROUTER_ENDPOINT", "https://openrouter.ai/api/v1/chat/completions"),
			Keys:     splitKeys(os.Getenv("OPENROUTER_API_KEY")),
			Model:    getenv("OPENROUTER_MODEL", "openai/gpt-4o-mini"),
			Timeout:  getduration("OPENROUTER_TIMEOUT", 45*time.Second),
		},
		Embedding: ProviderConfig{
			Name:     "openai",
			Endpoint: getenv("EMBEDDING_ENDPOINT", "https://api.openai.com/v1/embeddings"),
			Keys:     splitKeys(os.Getenv("EMBEDDING_API_KEY")),
			Model:    getenv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Timeout:  getduration("EMBEDDING_TIMEOUT", 20*time.Second),
		},
		ShortQueue: QueueConfig{
			Workers:        getint("SHORT_WORKERS", 8),
			Depth:          getint("SHORT_QUEUE_DEPTH", 128),
			STTTimeout:     45 * time.Second,
			ExtractTimeout: 30 * time.Second,
			EmbedTimeout:   15 * time.Second,
		},
		LongQueue: QueueConfig{
			Workers:        getint("LONG_WORKERS", 2),
			Depth:          getint("LONG_QUEUE_DEPTH", 32),
			STTTimeout:     5 * time.Minute,
			ExtractTimeout: 90 * time.Second,
			EmbedTimeout:   30 * time.Second,
		},
		OverflowQueue: QueueConfig{
			Workers:        getint("OVERFLOW_WORKERS", 2),
			Depth:          getint("OVERFLOW_QUEUE_DEPTH", 64),
			STTTimeout:     5 * time.Minute,
			ExtractTimeout: 90 * time.Second,
			EmbedTimeout:   30 * time.Second,
		},
		Billing: BillingConfig{
			PricePerMinuteCents: getint64("PRICE_PER_MINUTE_CENTS", 10),
		},
		Linker: LinkerConfig{
			TopN:      getint("LINKER_TOP_N", 5),
			Threshold: 0.78,
		},
		MaxJobAttempts:  getint("MAX_JOB_ATTEMPTS", 3),
		CleanupInterval: getduration("CLEANUP_INTERVAL", time.Minute),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is not set")
	}
	if c.AuthSecret == "" {
		return fmt.Errorf("config: AUTH_SECRET is not set")
	}
	if c.Blob.Endpoint == "" || c.Blob.Secret == "" {
		return fmt.Errorf("config: blob store endpoint/secret not set")
	}
	for _, p := range []ProviderConfig{c.STTPrimary, c.STTSecondary, c.Completion, c.Embedding} {
		if len(p.Keys) == 0 {
			return fmt.Errorf("config: provider %s has no credentials", p.Name)
		}
		if p.Endpoint == "" {
			return fmt.Errorf("config: provider %s has no endpoint", p.Name)
		}
	}
	for _, q := range []QueueConfig{c.ShortQueue, c.LongQueue, c.OverflowQueue} {
		if q.Workers <= 0 || q.Depth <= 0 {
			return fmt.Errorf("config: queue workers/depth must be positive")
		}
	}
	if c.Billing.PricePerMinuteCents <= 0 {
		return fmt.Errorf("config: price per minute must be positive")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getint64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
