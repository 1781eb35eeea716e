package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	api "github.com/mind-engage/mindengage-lti/internal/api/http"
	"github.com/mind-engage/mindengage-lti/internal/config"
	"github.com/mind-engage/mindengage-lti/internal/db"
	"github.com/mind-engage/mindengage-lti/internal/keys"
	"github.com/mind-engage/mindengage-lti/internal/logging"
	"github.com/mind-engage/mindengage-lti/internal/nonce"
	"github.com/mind-engage/mindengage-lti/internal/platform"
	"github.com/mind-engage/mindengage-lti/pkg/lti/ags"
	"github.com/mind-engage/mindengage-lti/pkg/lti/assertion"
	"github.com/mind-engage/mindengage-lti/pkg/lti/keyset"
	"github.com/mind-engage/mindengage-lti/pkg/lti/launch"
	"github.com/mind-engage/mindengage-lti/pkg/lti/token"
)

type CLI struct {
	Serve    ServeCmd    `cmd:"" default:"1" help:"Run the LTI tool HTTP server."`
	Keygen   KeygenCmd   `cmd:"" help:"Generate an RSA key pair for client assertions."`
	CheckKey CheckKeyCmd `cmd:"" name:"checkkey" help:"Validate the configured private key with a sign/verify round trip."`
}

type ServeCmd struct {
	Addr string `help:"Listen address; overrides HTTP_ADDR."`
}

func (c *ServeCmd) Run(ctx context.Context, log *zap.Logger, cfg config.Config) error {
	if c.Addr != "" {
		cfg.HTTPAddr = c.Addr
	}
	key, err := keys.LoadPrivateKey(cfg.LTI.PrivateKey, cfg.LTI.PrivateKeyFile)
	if err != nil {
		return fmt.Errorf("tool key: %w", err)
	}

	var (
		stores     []platform.Store
		adminStore platform.Store
		pinger     api.Pinger
	)
	if cfg.DBDriver != "" {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		cancel()
		if err != nil {
			return fmt.Errorf("db open: %w", err)
		}
		defer dbh.Close()
		sqlStore := &platform.SQLStore{DB: dbh}
		stores = append(stores, sqlStore)
		adminStore, pinger = sqlStore, dbh
	}
	if def := defaultPlatform(cfg); def.Issuer != "" {
		stores = append(stores, platform.NewStaticStore(def))
	}
	registry := platform.NewRegistry(cfg.LTI.JWKSURLTemplate, stores...)

	httpClient := &http.Client{Timeout: cfg.LTI.HTTPTimeout}
	keySets := keyset.NewCache(
		&keyset.HTTPFetcher{HTTP: httpClient, Resolver: registry},
		keyset.WithTTL(cfg.LTI.JWKSTTL),
		keyset.WithMinRefreshInterval(cfg.LTI.MinKeySetRefresh),
		keyset.WithLogger(log.Named("keyset")),
	)
	validator := launch.New(keySets, launch.Config{
		ClientID:         cfg.LTI.ClientID,
		ClientIDFor:      clientIDFor(registry),
		DeploymentID:     cfg.LTI.DeploymentID,
		RequireLTIClaims: cfg.LTI.RequireLTIClaims,
		Leeway:           cfg.LTI.ClockSkew,
	})

	signer := &assertion.KeySigner{Builder: assertion.Builder{KeyID: cfg.LTI.KeyID}, Key: key}
	tokens := token.NewProvider(signer, &token.Exchanger{HTTP: httpClient},
		token.WithSkew(cfg.LTI.TokenSkew),
		token.WithLogger(log.Named("token")),
	)
	defReg := token.Registration{ClientID: cfg.LTI.ClientID, Issuer: cfg.LTI.Issuer, TokenEndpoint: cfg.LTI.TokenEndpoint}
	submitter := &ags.Submitter{HTTP: httpClient, Tokens: tokens, Registration: defReg}

	router := api.NewRouter(api.Options{
		Log:         log,
		CORSOrigins: cfg.CORSOrigins,
		Verifier:    validator,
		Login: api.LoginConfig{
			Platforms:   registry,
			Nonces:      nonce.NewStore(0),
			RedirectURI: cfg.RedirectURI(),
			StateTTL:    cfg.LTI.LoginStateTTL,
		},
		Grade: api.GradeConfig{
			Submitter:           submitter,
			Default:             defReg,
			DefaultDeploymentID: cfg.LTI.DeploymentID,
			Platforms:           registry,
		},
		JWKS:  &api.JWKSHandler{Keys: keys.PublicJWKS(key, cfg.LTI.KeyID)},
		Admin: api.AdminConfig{Store: adminStore, KeySets: keySets, User: cfg.AdminUser, PassHash: cfg.AdminPassHash},
		DB:    pinger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("db", cfg.DBDriver),
			zap.String("client_id", cfg.LTI.ClientID),
			zap.String("issuer", cfg.LTI.Issuer))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func defaultPlatform(cfg config.Config) platform.Platform {
	return platform.Platform{
		Issuer:       cfg.LTI.Issuer,
		ClientID:     cfg.LTI.ClientID,
		DeploymentID: cfg.LTI.DeploymentID,
		AuthURL:      cfg.LTI.AuthEndpoint,
		TokenURL:     cfg.LTI.TokenEndpoint,
		JWKSURL:      cfg.LTI.JWKSURL,
	}
}

func clientIDFor(r *platform.Registry) func(context.Context, string) string {
	return func(ctx context.Context, issuer string) string {
		p, err := r.Lookup(ctx, issuer)
		if err != nil {
			return ""
		}
		return p.ClientID
	}
}

type KeygenCmd struct {
	OutDir string `default:"." type:"path" help:"Directory for private_key.pem and public_key.pem."`
	KeyID  string `default:"lti-service-key" help:"Key id published in the JWK."`
}

func (c *KeygenCmd) Run(log *zap.Logger) error {
	k, err := keys.Generate()
	if err != nil {
		return err
	}
	privPEM, err := keys.EncodePrivateKeyPEM(k)
	if err != nil {
		return err
	}
	pubPEM, err := keys.EncodePublicKeyPEM(&k.PublicKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.OutDir, 0o700); err != nil {
		return err
	}
	privPath := filepath.Join(c.OutDir, "private_key.pem")
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return err
	}
	pubPath := filepath.Join(c.OutDir, "public_key.pem")
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return err
	}
	if err := keys.SelfTest(k, c.KeyID); err != nil {
		return fmt.Errorf("self-test: %w", err)
	}
	log.Info("key pair written", zap.String("private", privPath), zap.String("public", pubPath))

	jwk, err := json.MarshalIndent(keys.PublicJWKS(k, c.KeyID), "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("LTI_PRIVATE_KEY=\"%s\"\nLTI_KEY_ID=%s\n\n%s\n", keys.EnvFormat(privPEM), c.KeyID, jwk)
	return nil
}

type CheckKeyCmd struct{}

func (CheckKeyCmd) Run(log *zap.Logger, cfg config.Config) error {
	k, err := keys.LoadPrivateKey(cfg.LTI.PrivateKey, cfg.LTI.PrivateKeyFile)
	if err != nil {
		return err
	}
	if err := keys.SelfTest(k, cfg.LTI.KeyID); err != nil {
		return fmt.Errorf("self-test: %w", err)
	}
	log.Info("private key ok", zap.String("kid", cfg.LTI.KeyID), zap.Int("bits", k.N.BitLen()))
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	cliCtx := kong.Parse(&cli,
		kong.Name("ltitool"),
		kong.Description("LTI 1.3 tool: launch validation and grade passback."),
		kong.UsageOnError(),
	)

	cfg := config.FromEnv()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cliCtx.BindTo(ctx, (*context.Context)(nil))
	cliCtx.Bind(logger, cfg)

	if err := cliCtx.Run(); err != nil {
		logger.Error("command failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

var _ api.Pinger = (*sql.DB)(nil)
