package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newViper(t *testing.T, overrides map[string]any) *viper.Viper {
	t.Helper()
	v := viper.New()
	setDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestDecodeDefaults(t *testing.T) {
	v := newViper(t, map[string]any{
		"security.accesssecret":  "access-secret",
		"security.refreshsecret": "refresh-secret",
	})
	cfg, err := decode(v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Security.AccessTTL != time.Hour {
		t.Fatalf("unexpected access ttl: %v", cfg.Security.AccessTTL)
	}
	if cfg.Security.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected refresh ttl: %v", cfg.Security.RefreshTTL)
	}
	if cfg.RateLimit.LoginLimit != 5 || cfg.RateLimit.LoginWindow != 15*time.Minute {
		t.Fatalf("unexpected login limit: %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.RefreshLimit != 10 || cfg.RateLimit.RefreshWindow != time.Minute {
		t.Fatalf("unexpected refresh limit: %+v", cfg.RateLimit)
	}
	if !cfg.Cookies.Secure {
		t.Fatalf("cookies must default to secure")
	}
	if cfg.TierRequests.MinRejectionReason != 10 {
		t.Fatalf("unexpected rejection reason minimum: %d", cfg.TierRequests.MinRejectionReason)
	}
	if cfg.Production() {
		t.Fatalf("default environment must not be production")
	}
}

func TestDecodeRejectsMissingOrSharedSecrets(t *testing.T) {
	cases := []struct {
		name      string
		overrides map[string]any
	}{
		{"missing", map[string]any{}},
		{"missing refresh", map[string]any{"security.accesssecret": "a"}},
		{"shared", map[string]any{"security.accesssecret": "same", "security.refreshsecret": "same"}},
		{"bad ttl", map[string]any{"security.accesssecret": "a", "security.refreshsecret": "b", "security.accessttl": "0s"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decode(newViper(t, tc.overrides)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("TIERGATE_SECURITY_ACCESSSECRET", "env-access")
	t.Setenv("TIERGATE_SECURITY_REFRESHSECRET", "env-refresh")
	t.Setenv("TIERGATE_SECURITY_ACCESSTTL", "30m")
	t.Setenv("TIERGATE_ENVIRONMENT", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Security.AccessSecret != "env-access" || cfg.Security.AccessTTL != 30*time.Minute {
		t.Fatalf("env not applied: %+v", cfg.Security)
	}
	if !cfg.Production() {
		t.Fatalf("expected production environment")
	}
}

func TestDecodeTrustedProxiesFromString(t *testing.T) {
	v := newViper(t, map[string]any{
		"security.accesssecret":  "access-secret",
		"security.refreshsecret": "refresh-secret",
		"http.trustedproxies":    "10.0.0.0/8,192.168.1.1",
	})
	cfg, err := decode(v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cfg.HTTP.TrustedProxies) != 2 || cfg.HTTP.TrustedProxies[1] != "192.168.1.1" {
		t.Fatalf("unexpected trusted proxies: %q", cfg.HTTP.TrustedProxies)
	}
}
