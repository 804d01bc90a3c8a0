package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port          string
	AllowedOrigin string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthSecret            string
	AccessTokenTTLMinutes int

	// ERP product master (S/4HANA through the connectivity proxy).
	ERPBaseURL  string
	ERPUser     string
	ERPPassword string
	ERPProxyURL string

	// Cache windows. Observed production values are the defaults; they are
	// deliberately not hard-coded because the three windows were chosen
	// independently and may need retuning.
	PriceCacheTTL        time.Duration
	PriceSessionTTL      time.Duration
	SourcingCacheTTL     time.Duration
	AvailabilityCacheTTL time.Duration

	// Sourcing / availability topology.
	SourcingStrategyID string
	StoreSites         []string
	OnlineSite         string
	DefaultCountry     string
	DefaultCurrency    string

	RequestTimeout      time.Duration // availability and other read calls
	SubmitTimeout       time.Duration // sourcing and order submission
	PriceWarmupDisabled bool
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:4200"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,

		ERPBaseURL:  strings.TrimRight(os.Getenv("ERP_BASE_URL"), "/"),
		ERPUser:     os.Getenv("ERP_USER"),
		ERPPassword: os.Getenv("ERP_PASSWORD"),
		ERPProxyURL: os.Getenv("ERP_PROXY_URL"),

		PriceCacheTTL:        getMinutes("PRICE_CACHE_TTL_MINUTES", 30),
		PriceSessionTTL:      getMinutes("PRICE_SESSION_TTL_MINUTES", 5),
		SourcingCacheTTL:     getMinutes("SOURCING_CACHE_TTL_MINUTES", 10),
		AvailabilityCacheTTL: getMinutes("AVAILABILITY_CACHE_TTL_MINUTES", 5),

		SourcingStrategyID: getEnv("OMSA_SOURCING_STRATEGY", "STANDARD"),
		StoreSites:         splitList(getEnv("OMSA_STORE_SITES", "1710,1720")),
		OnlineSite:         getEnv("OMSA_ONLINE_SITE", "ONLINE"),
		DefaultCountry:     getEnv("DEFAULT_COUNTRY", "DE"),
		DefaultCurrency:    getEnv("DEFAULT_CURRENCY", "EUR"),

		RequestTimeout:      getSeconds("BACKEND_REQUEST_TIMEOUT_SECONDS", 10),
		SubmitTimeout:       getSeconds("BACKEND_SUBMIT_TIMEOUT_SECONDS", 15),
		PriceWarmupDisabled: getEnv("PRICE_WARMUP_DISABLED", "") == "true",
	}

	return cfg
}

// Sites returns the full ordered site list used for availability queries:
// all store sites followed by the online site.
func (c Config) Sites() []string {
	sites := make([]string, 0, len(c.StoreSites)+1)
	sites = append(sites, c.StoreSites...)
	if c.OnlineSite != "" {
		sites = append(sites, c.OnlineSite)
	}
	return sites
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getMinutes(key string, fallback int) time.Duration {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		val = fallback
	}
	return time.Duration(val) * time.Minute
}

func getSeconds(key string, fallback int) time.Duration {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		val = fallback
	}
	return time.Duration(val) * time.Second
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
