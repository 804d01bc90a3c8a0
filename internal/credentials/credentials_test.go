package credentials

import (
	"errors"
	"testing"
)

func TestResolveFromEnvironment(t *testing.T) {
	resolver := NewResolverWithEnv(map[string]string{
		"OMF_CLIENT_ID":     "omf-client",
		"OMF_CLIENT_SECRET": "omf-secret",
		"OMF_TOKEN_URL":     "https://auth.example.com/token",
		"OMF_BASE_URL":      "https://omf.example.com/",
	})

	creds, err := resolver.Resolve("OMF")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if creds.ClientID != "omf-client" || creds.ClientSecret != "omf-secret" {
		t.Fatalf("unexpected client credentials: %+v", creds)
	}
	if creds.BaseURL != "https://omf.example.com" {
		t.Fatalf("base URL must be normalized without trailing slash, got %q", creds.BaseURL)
	}
}

func TestResolveFromBoundService(t *testing.T) {
	vcap := `{
		"user-provided": [
			{
				"name": "opps-credentials",
				"credentials": {
					"clientId": "bound-client",
					"clientSecret": "bound-secret",
					"tokenUrl": "https://auth.example.com/token",
					"baseUrl": "https://opps.example.com"
				}
			}
		]
	}`
	resolver := NewResolverWithEnv(map[string]string{"VCAP_SERVICES": vcap})

	creds, err := resolver.Resolve("OPPS")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if creds.ClientID != "bound-client" {
		t.Fatalf("expected bound-service credentials, got %+v", creds)
	}
}

func TestBoundServiceFallsBackToEnv(t *testing.T) {
	// The bound instance exists but only carries the id and secret; the rest
	// must come from the environment.
	vcap := `{
		"user-provided": [
			{
				"name": "omsa-credentials",
				"credentials": {
					"client_id": "bound-client",
					"client_secret": "bound-secret"
				}
			}
		]
	}`
	resolver := NewResolverWithEnv(map[string]string{
		"VCAP_SERVICES":  vcap,
		"OMSA_TOKEN_URL": "https://auth.example.com/token",
		"OMSA_BASE_URL":  "https://omsa.example.com",
	})

	creds, err := resolver.Resolve("OMSA")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if creds.ClientID != "bound-client" {
		t.Fatalf("expected snake_case bound keys to resolve, got %+v", creds)
	}
	if creds.TokenURL != "https://auth.example.com/token" {
		t.Fatalf("expected env fallback for token URL, got %q", creds.TokenURL)
	}
}

func TestMissingFieldsAreNamed(t *testing.T) {
	resolver := NewResolverWithEnv(map[string]string{
		"OMF_CLIENT_ID": "omf-client",
	})

	_, err := resolver.Resolve("OMF")

	var missing *MissingCredentialsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingCredentialsError, got %v", err)
	}
	if len(missing.Missing) != 3 {
		t.Fatalf("expected 3 missing fields, got %v", missing.Missing)
	}
}

func TestFailedResolutionNotMemoized(t *testing.T) {
	env := map[string]string{}
	resolver := NewResolverWithEnv(env)

	if _, err := resolver.Resolve("OMF"); err == nil {
		t.Fatal("expected resolution to fail with an empty environment")
	}

	env["OMF_CLIENT_ID"] = "omf-client"
	env["OMF_CLIENT_SECRET"] = "omf-secret"
	env["OMF_TOKEN_URL"] = "https://auth.example.com/token"
	env["OMF_BASE_URL"] = "https://omf.example.com"

	creds, err := resolver.Resolve("OMF")
	if err != nil {
		t.Fatalf("expected resolution to succeed after the environment was corrected: %v", err)
	}
	if creds.ClientID != "omf-client" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}
