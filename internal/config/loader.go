package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type config struct {
	domain string

	httpPort  string
	httpsPort string

	uploadsDir string

	tlsEnabled     bool
	tlsStoragePath string
	acmeEmail      string
	cfAPIToken     string
	acmeStaging    bool

	bufferSize      int
	maxHeaderSize   int
	maxUploadSize   int64
	strictMultipart bool

	encryptionKeyLoc     string
	encryptionRecipients []string

	grpcEnabled bool
	grpcPort    string

	pprofEnabled bool
	pprofPort    string

	logLevel string
	logPath  string
}

func parse() (*config, error) {
	logLevel, err := parseLogLevel()
	if err != nil {
		return nil, err
	}

	domain := getenv("DOMAIN", "localhost")

	httpPort := getenv("HTTP_PORT", "3000")
	httpsPort := getenv("HTTPS_PORT", "3443")

	uploadsDir := getenv("UPLOADS_DIR", "uploads")

	tlsEnabled := getenvBool("TLS_ENABLED", false)
	tlsStoragePath := getenv("TLS_STORAGE_PATH", "certs/tls/")

	acmeEmail := getenv("ACME_EMAIL", "admin@"+domain)
	acmeStaging := getenvBool("ACME_STAGING", false)

	cfToken := getenv("CF_API_TOKEN", "")
	if tlsEnabled && cfToken == "" {
		return nil, fmt.Errorf("CF_API_TOKEN is required when TLS is enabled")
	}

	bufferSize := parseBufferSize()

	maxHeaderSize, err := getenvInt("MAX_HEADER_SIZE", 65536)
	if err != nil {
		return nil, err
	}
	if maxHeaderSize <= 0 {
		return nil, fmt.Errorf("MAX_HEADER_SIZE must be positive")
	}

	maxUploadSize, err := getenvInt("MAX_UPLOAD_SIZE", 0)
	if err != nil {
		return nil, err
	}
	if maxUploadSize < 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_SIZE must not be negative")
	}

	strictMultipart := getenvBool("STRICT_MULTIPART", false)

	encryptionKeyLoc := getenv("ENCRYPTION_KEY_LOC", "certs/age.key")
	encryptionRecipients := parseList(getenv("ENCRYPTION_RECIPIENTS", ""))

	grpcEnabled := getenvBool("GRPC_ENABLED", false)
	grpcPort := getenv("GRPC_PORT", "50051")

	pprofEnabled := getenvBool("PPROF_ENABLED", false)
	pprofPort := getenv("PPROF_PORT", "6060")

	return &config{
		domain:               domain,
		httpPort:             httpPort,
		httpsPort:            httpsPort,
		uploadsDir:           uploadsDir,
		tlsEnabled:           tlsEnabled,
		tlsStoragePath:       tlsStoragePath,
		acmeEmail:            acmeEmail,
		cfAPIToken:           cfToken,
		acmeStaging:          acmeStaging,
		bufferSize:           bufferSize,
		maxHeaderSize:        maxHeaderSize,
		maxUploadSize:        int64(maxUploadSize),
		strictMultipart:      strictMultipart,
		encryptionKeyLoc:     encryptionKeyLoc,
		encryptionRecipients: encryptionRecipients,
		grpcEnabled:          grpcEnabled,
		grpcPort:             grpcPort,
		pprofEnabled:         pprofEnabled,
		pprofPort:            pprofPort,
		logLevel:             logLevel,
		logPath:              getenv("LOG_PATH", ""),
	}, nil
}

func loadEnvFile() error {
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}

func parseLogLevel() (string, error) {
	raw := strings.ToLower(getenv("LOG_LEVEL", "info"))
	if _, err := zerolog.ParseLevel(raw); err != nil {
		return "", fmt.Errorf("invalid LOG_LEVEL value %q", raw)
	}
	return raw, nil
}

func parseBufferSize() int {
	raw := getenv("BUFFER_SIZE", "32768")
	size, err := strconv.Atoi(raw)
	if err != nil || size < 4096 || size > 1048576 {
		log.Warn().Str("value", raw).Msg("Invalid BUFFER_SIZE, falling back to 4096")
		return 4096
	}
	return size
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val == "true"
}

func getenvInt(key string, def int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, val, err)
	}
	return n, nil
}
