// Package credentials resolves per-system OAuth client credentials for the
// OPPS, OMSA and OMF backends. OPPS and OMSA are normally bound as
// user-provided service instances (named "<system>-credentials" in the
// VCAP_SERVICES descriptor); plain environment variables are the fallback and
// the only source for OMF.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// SystemCredentials is immutable once resolved for a process lifetime.
type SystemCredentials struct {
	System       string
	ClientID     string
	ClientSecret string
	TokenURL     string
	BaseURL      string
}

// MissingCredentialsError names exactly which required fields were absent.
type MissingCredentialsError struct {
	System  string
	Missing []string
}

func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf("missing %s credentials: %s", e.System, strings.Join(e.Missing, ", "))
}

// Resolver resolves and memoizes credentials per system. A failed resolution
// is not memoized, so a later attempt after the environment is corrected
// succeeds without a restart.
type Resolver struct {
	mu       sync.Mutex
	resolved map[string]SystemCredentials
	// getenv is swappable for tests.
	getenv func(string) string
}

func NewResolver() *Resolver {
	return &Resolver{
		resolved: make(map[string]SystemCredentials),
		getenv:   os.Getenv,
	}
}

// NewResolverWithEnv builds a resolver over an explicit environment map.
func NewResolverWithEnv(env map[string]string) *Resolver {
	return &Resolver{
		resolved: make(map[string]SystemCredentials),
		getenv:   func(key string) string { return env[key] },
	}
}

// Resolve returns the credentials for system ("OPPS", "OMSA" or "OMF").
func (r *Resolver) Resolve(system string) (SystemCredentials, error) {
	system = strings.ToUpper(strings.TrimSpace(system))

	r.mu.Lock()
	defer r.mu.Unlock()

	if creds, ok := r.resolved[system]; ok {
		return creds, nil
	}

	creds := SystemCredentials{System: system}
	if system == "OPPS" || system == "OMSA" {
		creds = r.fromBoundService(system)
	}
	creds = r.fillFromEnv(system, creds)

	if missing := missingFields(creds); len(missing) > 0 {
		return SystemCredentials{}, &MissingCredentialsError{System: system, Missing: missing}
	}

	creds.BaseURL = strings.TrimRight(creds.BaseURL, "/")
	r.resolved[system] = creds
	return creds, nil
}

// boundService mirrors the user-provided entries of a VCAP_SERVICES document.
type boundService struct {
	Name        string            `json:"name"`
	Credentials map[string]string `json:"credentials"`
}

// fromBoundService looks for a user-provided instance named
// "<system>-credentials" (lower-cased system name). Any parse problem is a
// silent miss; the environment fallback covers it.
func (r *Resolver) fromBoundService(system string) SystemCredentials {
	creds := SystemCredentials{System: system}

	raw := r.getenv("VCAP_SERVICES")
	if raw == "" {
		return creds
	}

	var doc map[string][]boundService
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return creds
	}

	wanted := strings.ToLower(system) + "-credentials"
	for _, instances := range doc {
		for _, instance := range instances {
			if instance.Name != wanted {
				continue
			}
			creds.ClientID = firstOf(instance.Credentials, "clientId", "clientid", "client_id")
			creds.ClientSecret = firstOf(instance.Credentials, "clientSecret", "clientsecret", "client_secret")
			creds.TokenURL = firstOf(instance.Credentials, "tokenUrl", "tokenurl", "token_url", "url")
			creds.BaseURL = firstOf(instance.Credentials, "baseUrl", "baseurl", "base_url", "apiUrl")
			return creds
		}
	}
	return creds
}

// fillFromEnv fills any still-empty field from <SYSTEM>_CLIENT_ID-style
// variables.
func (r *Resolver) fillFromEnv(system string, creds SystemCredentials) SystemCredentials {
	if creds.ClientID == "" {
		creds.ClientID = r.getenv(system + "_CLIENT_ID")
	}
	if creds.ClientSecret == "" {
		creds.ClientSecret = r.getenv(system + "_CLIENT_SECRET")
	}
	if creds.TokenURL == "" {
		creds.TokenURL = r.getenv(system + "_TOKEN_URL")
	}
	if creds.BaseURL == "" {
		creds.BaseURL = r.getenv(system + "_BASE_URL")
	}
	return creds
}

func missingFields(creds SystemCredentials) []string {
	var missing []string
	if creds.ClientID == "" {
		missing = append(missing, "clientId")
	}
	if creds.ClientSecret == "" {
		missing = append(missing, "clientSecret")
	}
	if creds.TokenURL == "" {
		missing = append(missing, "tokenUrl")
	}
	if creds.BaseURL == "" {
		missing = append(missing, "baseUrl")
	}
	return missing
}

func firstOf(values map[string]string, keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(values[key]); val != "" {
			return val
		}
	}
	return ""
}
