package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetenv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		val      string
		def      string
		expected string
	}{
		{
			name:     "returns existing env",
			key:      "TEST_ENV_EXIST",
			val:      "value",
			def:      "default",
			expected: "value",
		},
		{
			name:     "returns default when env missing",
			key:      "TEST_ENV_MISSING",
			val:      "",
			def:      "default",
			expected: "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.val != "" {
				t.Setenv(tt.key, tt.val)
			} else {
				os.Unsetenv(tt.key)
			}
			assert.Equal(t, tt.expected, getenv(tt.key, tt.def))
		})
	}
}

func TestGetenvBool(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		val      string
		def      bool
		expected bool
	}{
		{
			name:     "returns true when env is true",
			key:      "TEST_BOOL_TRUE",
			val:      "true",
			def:      false,
			expected: true,
		},
		{
			name:     "returns false when env is false",
			key:      "TEST_BOOL_FALSE",
			val:      "false",
			def:      true,
			expected: false,
		},
		{
			name:     "returns default when env missing",
			key:      "TEST_BOOL_MISSING",
			val:      "",
			def:      true,
			expected: true,
		},
		{
			name:     "returns false when env is not true",
			key:      "TEST_BOOL_INVALID",
			val:      "yes",
			def:      true,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.val != "" {
				t.Setenv(tt.key, tt.val)
			} else {
				os.Unsetenv(tt.key)
			}
			assert.Equal(t, tt.expected, getenvBool(tt.key, tt.def))
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		expect    string
		expectErr bool
	}{
		{"debug", "debug", "debug", false},
		{"uppercase", "WARN", "warn", false},
		{"invalid", "loud", "", true},
		{"empty (default)", "", "info", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.level != "" {
				t.Setenv("LOG_LEVEL", tt.level)
			} else {
				os.Unsetenv("LOG_LEVEL")
			}
			level, err := parseLogLevel()
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expect, level)
			}
		})
	}
}

func TestGetenvInt(t *testing.T) {
	tests := []struct {
		name      string
		val       string
		def       int
		expect    int
		expectErr bool
	}{
		{"valid", "1024", 0, 1024, false},
		{"default when missing", "", 42, 42, false},
		{"negative", "-1", 0, -1, false},
		{"not a number", "1k", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.val != "" {
				t.Setenv("TEST_INT", tt.val)
			} else {
				os.Unsetenv("TEST_INT")
			}
			n, err := getenvInt("TEST_INT", tt.def)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expect, n)
		})
	}
}

func TestParseList(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		expect []string
	}{
		{"empty", "", nil},
		{"single", "age1abc", []string{"age1abc"}},
		{"trims and skips blanks", " age1abc , ,ssh-ed25519 AAAA ", []string{"age1abc", "ssh-ed25519 AAAA"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, parseList(tt.raw))
		})
	}
}

func TestParseBufferSize(t *testing.T) {
	tests := []struct {
		name   string
		val    string
		expect int
	}{
		{"valid size", "8192", 8192},
		{"default size", "", 32768},
		{"too small", "1024", 4096},
		{"too large", "2000000", 4096},
		{"invalid format", "abc", 4096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.val != "" {
				t.Setenv("BUFFER_SIZE", tt.val)
			} else {
				os.Unsetenv("BUFFER_SIZE")
			}
			size := parseBufferSize()
			assert.Equal(t, tt.expect, size)
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		envs      map[string]string
		expectErr bool
	}{
		{
			name: "minimal valid config",
			envs: map[string]string{
				"DOMAIN": "example.com",
			},
			expectErr: false,
		},
		{
			name: "TLS enabled without token",
			envs: map[string]string{
				"TLS_ENABLED": "true",
			},
			expectErr: true,
		},
		{
			name: "TLS enabled with token",
			envs: map[string]string{
				"TLS_ENABLED":  "true",
				"CF_API_TOKEN": "secret",
			},
			expectErr: false,
		},
		{
			name: "invalid log level",
			envs: map[string]string{
				"LOG_LEVEL": "loud",
			},
			expectErr: true,
		},
		{
			name: "invalid max header size",
			envs: map[string]string{
				"MAX_HEADER_SIZE": "big",
			},
			expectErr: true,
		},
		{
			name: "zero max header size",
			envs: map[string]string{
				"MAX_HEADER_SIZE": "0",
			},
			expectErr: true,
		},
		{
			name: "negative max upload size",
			envs: map[string]string{
				"MAX_UPLOAD_SIZE": "-5",
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envs {
				t.Setenv(k, v)
			}
			cfg, err := parse()
			if tt.expectErr {
				assert.Error(t, err)
				assert.Nil(t, cfg)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, cfg)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	os.Clearenv()

	cfg, err := parse()
	assert.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Domain())
	assert.Equal(t, "3000", cfg.HTTPPort())
	assert.Equal(t, "3443", cfg.HTTPSPort())
	assert.Equal(t, "uploads", cfg.UploadsDir())
	assert.Equal(t, "admin@localhost", cfg.ACMEEmail())
	assert.Equal(t, 32768, cfg.BufferSize())
	assert.Equal(t, 65536, cfg.MaxHeaderSize())
	assert.Equal(t, int64(0), cfg.MaxUploadSize())
	assert.False(t, cfg.StrictMultipart())
	assert.Equal(t, "certs/age.key", cfg.EncryptionKeyLoc())
	assert.Empty(t, cfg.EncryptionRecipients())
	assert.False(t, cfg.GRPCEnabled())
	assert.Equal(t, "50051", cfg.GRPCPort())
	assert.Equal(t, "info", cfg.LogLevel())
	assert.Equal(t, "", cfg.LogPath())
}

func TestGetters(t *testing.T) {
	envs := map[string]string{
		"DOMAIN":                "example.com",
		"HTTP_PORT":             "80",
		"HTTPS_PORT":            "443",
		"UPLOADS_DIR":           "/srv/files",
		"TLS_ENABLED":           "true",
		"TLS_STORAGE_PATH":      "/srv/tls/",
		"ACME_EMAIL":            "test@example.com",
		"CF_API_TOKEN":          "token",
		"ACME_STAGING":          "true",
		"BUFFER_SIZE":           "16384",
		"MAX_HEADER_SIZE":       "8192",
		"MAX_UPLOAD_SIZE":       "1048576",
		"STRICT_MULTIPART":      "true",
		"ENCRYPTION_KEY_LOC":    "/srv/age.key",
		"ENCRYPTION_RECIPIENTS": "age1one,age1two",
		"GRPC_ENABLED":          "true",
		"GRPC_PORT":             "9090",
		"PPROF_ENABLED":         "true",
		"PPROF_PORT":            "7070",
		"LOG_LEVEL":             "debug",
		"LOG_PATH":              "/var/log/fm.log",
	}

	os.Clearenv()
	for k, v := range envs {
		t.Setenv(k, v)
	}

	cfg, err := parse()
	assert.NoError(t, err)

	assert.Equal(t, "example.com", cfg.Domain())
	assert.Equal(t, "80", cfg.HTTPPort())
	assert.Equal(t, "443", cfg.HTTPSPort())
	assert.Equal(t, "/srv/files", cfg.UploadsDir())
	assert.Equal(t, true, cfg.TLSEnabled())
	assert.Equal(t, "/srv/tls/", cfg.TLSStoragePath())
	assert.Equal(t, "test@example.com", cfg.ACMEEmail())
	assert.Equal(t, "token", cfg.CFAPIToken())
	assert.Equal(t, true, cfg.ACMEStaging())
	assert.Equal(t, 16384, cfg.BufferSize())
	assert.Equal(t, 8192, cfg.MaxHeaderSize())
	assert.Equal(t, int64(1048576), cfg.MaxUploadSize())
	assert.Equal(t, true, cfg.StrictMultipart())
	assert.Equal(t, "/srv/age.key", cfg.EncryptionKeyLoc())
	assert.Equal(t, []string{"age1one", "age1two"}, cfg.EncryptionRecipients())
	assert.Equal(t, true, cfg.GRPCEnabled())
	assert.Equal(t, "9090", cfg.GRPCPort())
	assert.Equal(t, true, cfg.PprofEnabled())
	assert.Equal(t, "7070", cfg.PprofPort())
	assert.Equal(t, "debug", cfg.LogLevel())
	assert.Equal(t, "/var/log/fm.log", cfg.LogPath())
}

func TestMustLoad(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		os.Clearenv()
		t.Setenv("DOMAIN", "example.com")
		cfg, err := MustLoad()
		assert.NoError(t, err)
		assert.NotNil(t, cfg)
	})

	t.Run("loadEnvFile error", func(t *testing.T) {
		err := os.Mkdir(".env", 0755)
		assert.NoError(t, err)
		defer os.Remove(".env")

		cfg, err := MustLoad()
		assert.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("parse error", func(t *testing.T) {
		os.Clearenv()
		t.Setenv("LOG_LEVEL", "invalid")
		cfg, err := MustLoad()
		assert.Error(t, err)
		assert.Nil(t, cfg)
	})
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("file exists", func(t *testing.T) {
		err := os.WriteFile(".env", []byte("TEST_ENV_FILE=true"), 0644)
		assert.NoError(t, err)
		defer os.Remove(".env")

		err = loadEnvFile()
		assert.NoError(t, err)
		assert.Equal(t, "true", os.Getenv("TEST_ENV_FILE"))
	})

	t.Run("file missing", func(t *testing.T) {
		_ = os.Remove(".env")
		err := loadEnvFile()
		assert.NoError(t, err)
	})
}
