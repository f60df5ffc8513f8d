package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeTempConfig creates a configuration file with the provided body and
// returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

const pairOnlyConfig = `app:
  name: "TestApp"
  version: "1.0"
pair:
  leg_a:
    symbol: V
    feed: alpaca
  leg_b:
    symbol: MA
    feed: alpaca
`

const minimalConfig = pairOnlyConfig + `analysis:
  source: binance
  start: "2024-01-01"
  end: "2024-06-30"
`

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"EMAIL_ADDRESS", "EMAIL_PASSWORD", "EMAIL_TO", "SMTP_HOST", "SMTP_PORT",
		"ALPACA_API_KEY", "ALPACA_SECRET_KEY", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
		"AWS_REGION", "S3_BUCKET", "REDIS_ADDR", "REDIS_PASSWORD",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	clearCredentialEnv(t)
	cfg, err := LoadConfig(writeTempConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.App.Name)
	}
	if cfg.Monitor.Window != 60 {
		t.Errorf("expected default window 60, got %d", cfg.Monitor.Window)
	}
	if cfg.Monitor.UpperThreshold != 2.0 || cfg.Monitor.LowerThreshold != -2.0 {
		t.Errorf("unexpected thresholds: %+v", cfg.Monitor)
	}
	if cfg.Notifier.SMTP.Host != "smtp.gmail.com" || cfg.Notifier.SMTP.Port != 587 {
		t.Errorf("unexpected smtp defaults: %+v", cfg.Notifier.SMTP)
	}
	if cfg.History.Timeout != 15*time.Second {
		t.Errorf("unexpected history timeout: %s", cfg.History.Timeout)
	}
	if cfg.Pair.Name() != "V/MA" {
		t.Errorf("unexpected pair name: %s", cfg.Pair.Name())
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("EMAIL_ADDRESS", "alerts@example.com")
	t.Setenv("EMAIL_PASSWORD", "secret")
	t.Setenv("EMAIL_TO", "a@example.com, b@example.com")
	t.Setenv("ALPACA_API_KEY", "key")
	t.Setenv("ALPACA_SECRET_KEY", "shh")

	body := minimalConfig + `notifier:
  smtp:
    enabled: true
feeds:
  alpaca:
    enabled: true
`
	cfg, err := LoadConfig(writeTempConfig(t, body))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	smtp := cfg.Notifier.SMTP
	if smtp.Username != "alerts@example.com" || smtp.From != "alerts@example.com" || smtp.Password != "secret" {
		t.Errorf("smtp credentials not applied: %+v", smtp)
	}
	if len(smtp.To) != 2 || smtp.To[1] != "b@example.com" {
		t.Errorf("unexpected recipients: %v", smtp.To)
	}
	if cfg.Feeds.Alpaca.KeyID != "key" || cfg.Feeds.Alpaca.SecretKey != "shh" {
		t.Errorf("alpaca credentials not applied: %+v", cfg.Feeds.Alpaca)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	clearCredentialEnv(t)
	cases := []struct {
		name string
		body string
	}{
		{"missing pair", "app:\n  name: x\n"},
		{"small window", minimalConfig + "monitor:\n  window: 1\n"},
		{"inverted thresholds", minimalConfig + "monitor:\n  upper_threshold: -1\n  lower_threshold: 1\n"},
		{"unknown source", pairOnlyConfig + "analysis:\n  source: yahoo\n"},
		{"bad date", pairOnlyConfig + "analysis:\n  source: binance\n  start: 2024/01/01\n  end: 2024-02-01\n"},
		{"smtp without recipients", minimalConfig + "notifier:\n  smtp:\n    enabled: true\n    from: a@example.com\n"},
		{"s3 without bucket", pairOnlyConfig + "analysis:\n  source: s3\n"},
		{"archive without bucket", minimalConfig + "archive:\n  enabled: true\n"},
		{"archive bad compression", minimalConfig + "history:\n  s3:\n    bucket: prices\narchive:\n  enabled: true\n  compression: lz4\n"},
		{"smtp bad tls policy", minimalConfig + "notifier:\n  smtp:\n    tls: starttls\n"},
		{"unknown feed", "app:\n  name: x\npair:\n  leg_a:\n    symbol: A\n    feed: nasdaq\n  leg_b:\n    symbol: B\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := LoadConfig(writeTempConfig(t, c.body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestAnalysisRange(t *testing.T) {
	a := AnalysisConfig{Start: "2024-01-01", End: "2024-03-01"}
	start, end, err := a.Range()
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if !start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) || end.Month() != time.March {
		t.Fatalf("unexpected range %s - %s", start, end)
	}

	a.End = "2023-12-31"
	if _, _, err := a.Range(); err == nil {
		t.Fatalf("expected error for end before start")
	}
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	def := filepath.Join(dir, "config.yml")
	prod := filepath.Join(dir, "config.production.yml")
	if err := os.WriteFile(prod, []byte("app: {}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("APP_ENV", "prod")
	if got := ResolvePath("", def); got != prod {
		t.Fatalf("expected %s, got %s", prod, got)
	}
	if got := ResolvePath("/etc/custom.yml", def); got != "/etc/custom.yml" {
		t.Fatalf("explicit path should be kept, got %s", got)
	}

	t.Setenv("APP_ENV", "")
	if got := ResolvePath(def, def); got != def {
		t.Fatalf("expected default path for development, got %s", got)
	}
	if !IsProductionLike(EnvironmentStaging) || IsProductionLike(AppEnvironment()) {
		t.Fatalf("unexpected production-like classification")
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}
