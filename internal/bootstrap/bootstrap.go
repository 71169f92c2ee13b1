package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"file_manager/internal/config"
	"file_manager/internal/events"
	grpcserver "file_manager/internal/grpc/server"
	"file_manager/internal/key"
	"file_manager/internal/middleware"
	"file_manager/internal/registry"
	"file_manager/internal/storage"
	"file_manager/internal/transport"
	"file_manager/internal/version"

	"github.com/rs/zerolog/log"
)

var shutdownTimeout = 10 * time.Second

type Bootstrap struct {
	Config     config.Config
	Store      *storage.Store
	Hub        *events.Hub
	Active     registry.Registry[string, string]
	Recipients []key.Recipient
	ErrChan    chan error
	SignalChan chan os.Signal
	// Ready is closed once the HTTP and gRPC listeners are bound.
	Ready chan struct{}

	httpAddr net.Addr
	grpcAddr net.Addr
}

func New(conf config.Config) (*Bootstrap, error) {
	store, err := storage.New(conf.UploadsDir())
	if err != nil {
		return nil, err
	}

	recipients, err := loadRecipients(conf)
	if err != nil {
		return nil, err
	}

	return &Bootstrap{
		Config:     conf,
		Store:      store,
		Hub:        events.NewHub(),
		Active:     registry.NewRegistry[string, string](),
		Recipients: recipients,
		ErrChan:    make(chan error, 5),
		SignalChan: make(chan os.Signal, 1),
		Ready:      make(chan struct{}),
	}, nil
}

// loadRecipients returns the server's own age identity first, followed by the
// extra recipients from ENCRYPTION_RECIPIENTS.
func loadRecipients(conf config.Config) ([]key.Recipient, error) {
	keyPath := conf.EncryptionKeyLoc()
	if err := key.GenerateAgeIdentityIfNotExist(keyPath); err != nil {
		return nil, fmt.Errorf("generate encryption key: %w", err)
	}
	identity, err := key.LoadIdentity(keyPath)
	if err != nil {
		return nil, fmt.Errorf("load encryption key: %w", err)
	}

	extra, err := key.ParseRecipients(conf.EncryptionRecipients())
	if err != nil {
		return nil, fmt.Errorf("parse encryption recipients: %w", err)
	}

	own := identity.Recipient()
	return append([]key.Recipient{{Recipient: own, Label: own.String()}}, extra...), nil
}

func (b *Bootstrap) Handler() http.Handler {
	handler := transport.NewHandler(b.Store, b.Hub, b.Active, transport.HandlerOptions{
		BufferSize:    b.Config.BufferSize(),
		MaxHeaderSize: b.Config.MaxHeaderSize(),
		MaxUploadSize: b.Config.MaxUploadSize(),
		Strict:        b.Config.StrictMultipart(),
		Recipients:    b.Recipients,
		Events:        b.Hub.Handler(),
	})

	return middleware.NewChain().
		UseRequest(middleware.NewForwardedFor()).
		UseResponse(middleware.NewServerHeader(version.Product())).
		Then(handler)
}

// HTTPAddr is the bound address of the HTTP listener, valid after Ready.
func (b *Bootstrap) HTTPAddr() net.Addr {
	return b.httpAddr
}

// GRPCAddr is nil unless the gRPC health service is enabled.
func (b *Bootstrap) GRPCAddr() net.Addr {
	return b.grpcAddr
}

func (b *Bootstrap) report(err error) {
	select {
	case b.ErrChan <- err:
	default:
		log.Error().Err(err).Msg("Dropped service error")
	}
}

func (b *Bootstrap) serve(name string, t transport.Transport, ln net.Listener) {
	if err := t.Serve(ln); err != nil && !errors.Is(err, net.ErrClosed) {
		b.report(fmt.Errorf("error when serving %s server: %w", name, err))
	}
}

func (b *Bootstrap) startHTTPSServer(ctx context.Context, handler http.Handler, started chan<- transport.Transport) {
	tlsCfg, err := transport.NewTLSConfig(ctx, b.Config)
	if err != nil {
		b.report(fmt.Errorf("failed to create TLS config: %w", err))
		return
	}
	httpsServer := transport.NewHTTPSServer(b.Config.HTTPSPort(), handler, tlsCfg)
	ln, err := httpsServer.Listen()
	if err != nil {
		b.report(fmt.Errorf("failed to start https server: %w", err))
		return
	}
	started <- httpsServer
	b.serve("https", httpsServer, ln)
}

func (b *Bootstrap) startPprof(pprofPort string) {
	pprofAddr := fmt.Sprintf("localhost:%s", pprofPort)
	log.Info().Str("addr", "http://"+pprofAddr+"/debug/pprof/").Msg("Starting pprof server")
	if err := http.ListenAndServe(pprofAddr, nil); err != nil {
		b.report(fmt.Errorf("pprof server error: %w", err))
	}
}

func (b *Bootstrap) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signal.Notify(b.SignalChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(b.SignalChan)

	handler := b.Handler()
	var servers []transport.Transport

	httpServer := transport.NewHTTPServer(b.Config.HTTPPort(), handler)
	ln, err := httpServer.Listen()
	if err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}
	b.httpAddr = ln.Addr()
	servers = append(servers, httpServer)
	go b.serve("http", httpServer, ln)

	var health *grpcserver.Server
	if b.Config.GRPCEnabled() {
		health = grpcserver.New(b.Config.GRPCPort())
		gln, gerr := health.Listen()
		if gerr != nil {
			if err = b.shutdown(servers, nil); err != nil {
				log.Warn().Err(err).Msg("Shutdown after failed start")
			}
			return fmt.Errorf("failed to start gRPC server: %w", gerr)
		}
		b.grpcAddr = gln.Addr()
		go b.serve("gRPC", health, gln)
	}

	httpsStarted := make(chan transport.Transport, 1)
	if b.Config.TLSEnabled() {
		go b.startHTTPSServer(ctx, handler, httpsStarted)
	}

	if b.Config.PprofEnabled() {
		go b.startPprof(b.Config.PprofPort())
	}

	if health != nil {
		health.SetServing(true)
	}
	close(b.Ready)
	log.Info().Str("version", version.GetVersion()).Msg("All services started successfully")

	select {
	case err = <-b.ErrChan:
		err = fmt.Errorf("service error: %w", err)
	case sig := <-b.SignalChan:
		log.Info().Str("signal", sig.String()).Msg("Received signal, initiating graceful shutdown")
	}

	cancel()
	select {
	case s := <-httpsStarted:
		servers = append(servers, s)
	default:
	}
	if shutdownErr := b.shutdown(servers, health); shutdownErr != nil {
		log.Warn().Err(shutdownErr).Msg("Graceful shutdown incomplete")
	}
	return err
}

func (b *Bootstrap) shutdown(servers []transport.Transport, health *grpcserver.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if health != nil {
		health.SetServing(false)
	}

	var errs []error
	for _, s := range servers {
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shut down server: %w", err))
		}
	}

	if err := b.Hub.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close event hub: %w", err))
	}

	if health != nil {
		if err := health.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop gRPC server: %w", err))
		}
	}
	return errors.Join(errs...)
}
