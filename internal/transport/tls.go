package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/libdns/cloudflare"
	"github.com/rs/zerolog/log"
)

// TLSSettings is the part of the configuration the certificate manager reads.
type TLSSettings interface {
	Domain() string
	TLSStoragePath() string
	CFAPIToken() string
	ACMEEmail() string
	ACMEStaging() bool
}

var certWatchInterval = 30 * time.Second

// NewTLSConfig serves user certificates from TLS_STORAGE_PATH when they are
// valid for the domain and otherwise obtains one through ACME DNS-01 on
// Cloudflare. The watcher for user certificates stops with ctx.
func NewTLSConfig(ctx context.Context, settings TLSSettings) (*tls.Config, error) {
	tm := createTLSManager(settings)
	if err := tm.initialize(ctx); err != nil {
		return nil, err
	}
	return tm.getTLSConfig(), nil
}

type tlsManager struct {
	settings TLSSettings

	certPath    string
	keyPath     string
	storagePath string

	userCert   *tls.Certificate
	userCertMu sync.RWMutex

	magic *certmagic.Config

	useCertMagic atomic.Bool
}

func createTLSManager(settings TLSSettings) *tlsManager {
	cleanBase := filepath.Clean(settings.TLSStoragePath())

	return &tlsManager{
		settings:    settings,
		certPath:    filepath.Join(cleanBase, "cert.pem"),
		keyPath:     filepath.Join(cleanBase, "privkey.pem"),
		storagePath: filepath.Join(cleanBase, "certmagic"),
	}
}

func (tm *tlsManager) initialize(ctx context.Context) error {
	if tm.userCertsExistAndValid() {
		return tm.initializeWithUserCerts(ctx)
	}
	return tm.initializeWithCertMagic(ctx)
}

func (tm *tlsManager) initializeWithUserCerts(ctx context.Context) error {
	log.Info().Str("cert", tm.certPath).Str("key", tm.keyPath).Msg("Using user-provided certificates")

	if err := tm.loadUserCerts(); err != nil {
		return fmt.Errorf("failed to load user certificates: %w", err)
	}

	tm.useCertMagic.Store(false)
	go newCertWatcher(tm).watch(ctx)
	return nil
}

func (tm *tlsManager) initializeWithCertMagic(ctx context.Context) error {
	log.Info().Str("domain", tm.settings.Domain()).Msg("User certificates missing or invalid, using CertMagic")

	if err := tm.initCertMagic(ctx); err != nil {
		return fmt.Errorf("failed to initialize CertMagic: %w", err)
	}

	tm.useCertMagic.Store(true)
	return nil
}

func (tm *tlsManager) userCertsExistAndValid() bool {
	if !tm.certFilesExist() {
		return false
	}
	return validateCertDomain(tm.certPath, tm.settings.Domain())
}

func (tm *tlsManager) certFilesExist() bool {
	for _, p := range []string{tm.certPath, tm.keyPath} {
		if _, err := os.Stat(p); err != nil {
			log.Debug().Str("path", p).Msg("Certificate file not found")
			return false
		}
	}
	return true
}

func (tm *tlsManager) loadUserCerts() error {
	cert, err := tls.LoadX509KeyPair(tm.certPath, tm.keyPath)
	if err != nil {
		return err
	}

	tm.userCertMu.Lock()
	tm.userCert = &cert
	tm.userCertMu.Unlock()

	log.Info().Msg("Loaded user certificates successfully")
	return nil
}

func (tm *tlsManager) initCertMagic(ctx context.Context) error {
	if err := os.MkdirAll(tm.storagePath, 0700); err != nil {
		return fmt.Errorf("failed to create cert storage directory: %w", err)
	}

	if tm.settings.CFAPIToken() == "" {
		return fmt.Errorf("CF_API_TOKEN environment variable is required for automatic certificate generation")
	}

	tm.magic = tm.createCertMagicConfig()

	domains := []string{tm.settings.Domain()}
	log.Info().Strs("domains", domains).Msg("Requesting certificates")
	if err := tm.magic.ManageSync(ctx, domains); err != nil {
		return fmt.Errorf("failed to obtain certificates: %w", err)
	}
	log.Info().Strs("domains", domains).Msg("Certificates obtained successfully")
	return nil
}

func (tm *tlsManager) createCertMagicConfig() *certmagic.Config {
	cfProvider := &cloudflare.Provider{
		APIToken: tm.settings.CFAPIToken(),
	}

	var magic *certmagic.Config
	cache := certmagic.NewCache(certmagic.CacheOptions{
		GetConfigForCert: func(cert certmagic.Certificate) (*certmagic.Config, error) {
			return magic, nil
		},
	})

	magic = certmagic.New(cache, certmagic.Config{
		Storage: &certmagic.FileStorage{Path: tm.storagePath},
	})

	issuer := certmagic.NewACMEIssuer(magic, certmagic.ACMEIssuer{
		Email:  tm.settings.ACMEEmail(),
		Agreed: true,
		DNS01Solver: &certmagic.DNS01Solver{
			DNSManager: certmagic.DNSManager{
				DNSProvider: cfProvider,
			},
		},
	})
	if tm.settings.ACMEStaging() {
		issuer.CA = certmagic.LetsEncryptStagingCA
		log.Info().Msg("Using Let's Encrypt staging server")
	} else {
		issuer.CA = certmagic.LetsEncryptProductionCA
	}
	magic.Issuers = []certmagic.Issuer{issuer}

	return magic
}

func (tm *tlsManager) getTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: tm.getCertificate,

		MinVersion: tls.VersionTLS13,
		MaxVersion: tls.VersionTLS13,

		CurvePreferences: []tls.CurveID{
			tls.X25519,
		},

		SessionTicketsDisabled: false,
		ClientAuth:             tls.NoClientCert,
	}
}

func (tm *tlsManager) getCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if tm.useCertMagic.Load() {
		return tm.magic.GetCertificate(hello)
	}

	tm.userCertMu.RLock()
	defer tm.userCertMu.RUnlock()

	if tm.userCert == nil {
		return nil, fmt.Errorf("no certificate available")
	}
	return tm.userCert, nil
}

func validateCertDomain(certPath, domain string) bool {
	cert, err := loadAndParseCertificate(certPath)
	if err != nil {
		log.Warn().Err(err).Str("path", certPath).Msg("Unusable certificate")
		return false
	}
	if !isCertificateValid(cert) {
		return false
	}
	if err = cert.VerifyHostname(domain); err != nil {
		log.Warn().Err(err).Str("domain", domain).Msg("Certificate does not cover domain")
		return false
	}
	return true
}

func loadAndParseCertificate(certPath string) (*x509.Certificate, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	return x509.ParseCertificate(block.Bytes)
}

// isCertificateValid rejects expired certificates and those expiring within
// 30 days, which are left to CertMagic to renew.
func isCertificateValid(cert *x509.Certificate) bool {
	now := time.Now()
	if now.After(cert.NotAfter) {
		log.Warn().Time("not_after", cert.NotAfter).Msg("Certificate has expired")
		return false
	}
	if now.Add(30 * 24 * time.Hour).After(cert.NotAfter) {
		log.Warn().Time("not_after", cert.NotAfter).Msg("Certificate expiring soon")
		return false
	}
	return true
}

type certWatcher struct {
	tm          *tlsManager
	lastCertMod time.Time
	lastKeyMod  time.Time
}

func newCertWatcher(tm *tlsManager) *certWatcher {
	cw := &certWatcher{tm: tm}
	if info, err := os.Stat(tm.certPath); err == nil {
		cw.lastCertMod = info.ModTime()
	}
	if info, err := os.Stat(tm.keyPath); err == nil {
		cw.lastKeyMod = info.ModTime()
	}
	return cw
}

func (cw *certWatcher) watch(ctx context.Context) {
	ticker := time.NewTicker(certWatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cw.checkAndReloadCerts(ctx) {
				return
			}
		}
	}
}

// checkAndReloadCerts reports true once the manager has switched to
// CertMagic and the watcher is no longer needed.
func (cw *certWatcher) checkAndReloadCerts(ctx context.Context) bool {
	certInfo, certErr := os.Stat(cw.tm.certPath)
	keyInfo, keyErr := os.Stat(cw.tm.keyPath)
	if certErr != nil || keyErr != nil {
		return false
	}

	if !certInfo.ModTime().After(cw.lastCertMod) && !keyInfo.ModTime().After(cw.lastKeyMod) {
		return false
	}

	log.Info().Msg("Certificate files changed, reloading")

	if !validateCertDomain(cw.tm.certPath, cw.tm.settings.Domain()) {
		if err := cw.tm.initCertMagic(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to initialize CertMagic")
			return false
		}
		cw.tm.useCertMagic.Store(true)
		return true
	}

	if err := cw.tm.loadUserCerts(); err != nil {
		log.Error().Err(err).Msg("Failed to reload certificates")
		return false
	}

	cw.lastCertMod = certInfo.ModTime()
	cw.lastKeyMod = keyInfo.ModTime()
	return false
}
