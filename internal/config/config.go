package config

type Config interface {
	Domain() string

	HTTPPort() string
	HTTPSPort() string

	UploadsDir() string

	TLSEnabled() bool
	TLSStoragePath() string

	ACMEEmail() string
	CFAPIToken() string
	ACMEStaging() bool

	BufferSize() int
	MaxHeaderSize() int
	MaxUploadSize() int64
	StrictMultipart() bool

	EncryptionKeyLoc() string
	EncryptionRecipients() []string

	GRPCEnabled() bool
	GRPCPort() string

	PprofEnabled() bool
	PprofPort() string

	LogLevel() string
	LogPath() string
}

func MustLoad() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg, err := parse()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *config) Domain() string                 { return c.domain }
func (c *config) HTTPPort() string               { return c.httpPort }
func (c *config) HTTPSPort() string              { return c.httpsPort }
func (c *config) UploadsDir() string             { return c.uploadsDir }
func (c *config) TLSEnabled() bool               { return c.tlsEnabled }
func (c *config) TLSStoragePath() string         { return c.tlsStoragePath }
func (c *config) ACMEEmail() string              { return c.acmeEmail }
func (c *config) CFAPIToken() string             { return c.cfAPIToken }
func (c *config) ACMEStaging() bool              { return c.acmeStaging }
func (c *config) BufferSize() int                { return c.bufferSize }
func (c *config) MaxHeaderSize() int             { return c.maxHeaderSize }
func (c *config) MaxUploadSize() int64           { return c.maxUploadSize }
func (c *config) StrictMultipart() bool          { return c.strictMultipart }
func (c *config) EncryptionKeyLoc() string       { return c.encryptionKeyLoc }
func (c *config) EncryptionRecipients() []string { return c.encryptionRecipients }
func (c *config) GRPCEnabled() bool              { return c.grpcEnabled }
func (c *config) GRPCPort() string               { return c.grpcPort }
func (c *config) PprofEnabled() bool             { return c.pprofEnabled }
func (c *config) PprofPort() string              { return c.pprofPort }
func (c *config) LogLevel() string               { return c.logLevel }
func (c *config) LogPath() string                { return c.logPath }
