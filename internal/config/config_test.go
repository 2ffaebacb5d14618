package config

import (
	"os"
	"testing"
	"time"
)

func setRequired() {
	os.Setenv("ADMIN_JWT_SECRET", "access-secret-for-tests")
	os.Setenv("ADMIN_REFRESH_SECRET", "refresh-secret-for-tests")
}

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	setRequired()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if cfg.SessionBackend != BackendMemory {
		t.Errorf("SessionBackend = %q, want %q", cfg.SessionBackend, BackendMemory)
	}
	if cfg.AccessTTL() != 12*time.Hour {
		t.Errorf("AccessTTL = %v, want 12h", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 30*24*time.Hour {
		t.Errorf("RefreshTTL = %v, want 720h", cfg.RefreshTTL())
	}
	if cfg.RefreshThreshold() != 30*time.Minute {
		t.Errorf("RefreshThreshold = %v, want 30m", cfg.RefreshThreshold())
	}
	if cfg.HeartbeatInterval() != 5*time.Minute {
		t.Errorf("HeartbeatInterval = %v, want 5m", cfg.HeartbeatInterval())
	}
	if cfg.MaxConcurrentSessions != 5 {
		t.Errorf("MaxConcurrentSessions = %d, want 5", cfg.MaxConcurrentSessions)
	}
	if cfg.SessionLimitPolicy != LimitPolicyEvictOldest {
		t.Errorf("SessionLimitPolicy = %q, want %q", cfg.SessionLimitPolicy, LimitPolicyEvictOldest)
	}
	if !cfg.RequireEmailVerified {
		t.Error("RequireEmailVerified should default to true")
	}
	if cfg.FingerprintIncludeIP {
		t.Error("FingerprintIncludeIP should default to false")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.PersistTimeout() != 2*time.Second {
		t.Errorf("PersistTimeout = %v, want 2s", cfg.PersistTimeout())
	}
	if !cfg.AuditPostgresSink {
		t.Error("AuditPostgresSink should default to true")
	}
	if cfg.KafkaGroupID != "admin-audit-archiver" {
		t.Errorf("KafkaGroupID = %q", cfg.KafkaGroupID)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	setRequired()
	os.Setenv("ACCESS_TTL", "2h")
	os.Setenv("REFRESH_THRESHOLD", "10m")
	os.Setenv("SESSION_LIMIT_POLICY", "reject")
	os.Setenv("FINGERPRINT_INCLUDE_IP", "true")
	os.Setenv("MAX_CONCURRENT_SESSIONS", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AccessTTL() != 2*time.Hour {
		t.Errorf("AccessTTL = %v, want 2h", cfg.AccessTTL())
	}
	if cfg.RefreshThreshold() != 10*time.Minute {
		t.Errorf("RefreshThreshold = %v, want 10m", cfg.RefreshThreshold())
	}
	if cfg.SessionLimitPolicy != LimitPolicyReject {
		t.Errorf("SessionLimitPolicy = %q, want reject", cfg.SessionLimitPolicy)
	}
	if !cfg.FingerprintIncludeIP {
		t.Error("FingerprintIncludeIP should be true")
	}
	if cfg.MaxConcurrentSessions != 2 {
		t.Errorf("MaxConcurrentSessions = %d, want 2", cfg.MaxConcurrentSessions)
	}
}

func TestLoad_SecretsRequired(t *testing.T) {
	os.Clearenv()
	if _, err := Load(); err == nil {
		t.Fatal("expected error when secrets are unset")
	}
}

func TestLoad_SecretsMustDiffer(t *testing.T) {
	os.Clearenv()
	os.Setenv("ADMIN_JWT_SECRET", "same-secret")
	os.Setenv("ADMIN_REFRESH_SECRET", "same-secret")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when access and refresh secrets are identical")
	}
}

func TestLoad_ProductionRequiresLongSecrets(t *testing.T) {
	os.Clearenv()
	setRequired()
	os.Setenv("APP_ENV", "production")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for short secrets in production")
	}
}

func TestLoad_PostgresBackendRequiresDSN(t *testing.T) {
	os.Clearenv()
	setRequired()
	os.Setenv("SESSION_BACKEND", "postgres")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for postgres backend without DATABASE_URL")
	}
}

func TestLoad_UnknownBackend(t *testing.T) {
	os.Clearenv()
	setRequired()
	os.Setenv("SESSION_BACKEND", "etcd")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoad_ThresholdMustBeShorterThanTTL(t *testing.T) {
	os.Clearenv()
	setRequired()
	os.Setenv("ACCESS_TTL", "20m")
	os.Setenv("REFRESH_THRESHOLD", "30m")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when REFRESH_THRESHOLD >= ACCESS_TTL")
	}
}

func TestLoad_BCRYPT_COSTRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			setRequired()
			os.Setenv("BCRYPT_COST", tc.value)
			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tc.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tc.want)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		err  bool
	}{
		{"12h", 12 * time.Hour, false},
		{"30m", 30 * time.Minute, false},
		{"30d", 30 * 24 * time.Hour, false},
		{"1.5d", 36 * time.Hour, false},
		{"xd", 0, true},
		{"bogus", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if tt.err {
			if err == nil {
				t.Errorf("ParseDuration(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDuration(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestKafkaBrokersList(t *testing.T) {
	cfg := &Config{KafkaBrokers: " a:9092, ,b:9092 "}
	got := cfg.KafkaBrokersList()
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Errorf("KafkaBrokersList = %v", got)
	}
	var nilCfg *Config
	if nilCfg.KafkaBrokersList() != nil {
		t.Error("nil config should return nil brokers")
	}
}

func TestLoadDatabaseURL_NoSecretsNeeded(t *testing.T) {
	os.Clearenv()
	os.Setenv("DATABASE_URL", " postgres://localhost/exam ")
	if got := LoadDatabaseURL(); got != "postgres://localhost/exam" {
		t.Errorf("LoadDatabaseURL = %q", got)
	}
}
