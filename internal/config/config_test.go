package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.PriceCacheTTL != 30*time.Minute || cfg.PriceSessionTTL != 5*time.Minute {
		t.Fatalf("unexpected price cache windows: %v / %v", cfg.PriceCacheTTL, cfg.PriceSessionTTL)
	}
	if cfg.SourcingCacheTTL != 10*time.Minute || cfg.AvailabilityCacheTTL != 5*time.Minute {
		t.Fatalf("unexpected sourcing windows: %v / %v", cfg.SourcingCacheTTL, cfg.AvailabilityCacheTTL)
	}
	if cfg.DefaultCurrency != "EUR" || cfg.DefaultCountry != "DE" {
		t.Fatalf("unexpected locale defaults: %s / %s", cfg.DefaultCurrency, cfg.DefaultCountry)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("OMSA_STORE_SITES", " 2010 , 2020 ,")
	t.Setenv("PRICE_CACHE_TTL_MINUTES", "45")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "not-a-number")
	t.Setenv("ERP_BASE_URL", "https://erp.example.com/")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %s", cfg.Port)
	}
	if len(cfg.StoreSites) != 2 || cfg.StoreSites[0] != "2010" || cfg.StoreSites[1] != "2020" {
		t.Fatalf("expected trimmed site list, got %v", cfg.StoreSites)
	}
	if cfg.PriceCacheTTL != 45*time.Minute {
		t.Fatalf("expected 45m price cache, got %v", cfg.PriceCacheTTL)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("invalid TTL must fall back to 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.ERPBaseURL != "https://erp.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.ERPBaseURL)
	}
}

func TestSitesAppendsOnlineSite(t *testing.T) {
	cfg := Config{StoreSites: []string{"1710", "1720"}, OnlineSite: "ONLINE"}

	sites := cfg.Sites()
	if len(sites) != 3 || sites[2] != "ONLINE" {
		t.Fatalf("expected store sites plus online, got %v", sites)
	}

	cfg.OnlineSite = ""
	if got := cfg.Sites(); len(got) != 2 {
		t.Fatalf("expected store sites only, got %v", got)
	}
}
