package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eid-tools/dds-hashcode/internal/config"
	"github.com/eid-tools/dds-hashcode/internal/logger"
	"github.com/eid-tools/dds-hashcode/internal/server"
	"github.com/eid-tools/dds-hashcode/internal/services"
	"github.com/eid-tools/dds-hashcode/internal/version"
)

//	@title			hashcode-server
//	@description	hashcode-server signs BDOC and DDOC containers through DigiDocService without sending the data file contents.
//	@description
//	@description	## Signing workflow
//	@description	1. `POST /v1/sessions` uploads a container (or `POST /v1/sessions/new` starts an empty one)
//	@description	2. `POST /v1/sessions/{sessionID}/datafiles` adds data files
//	@description	3. `POST /v1/sessions/{sessionID}/signatures` returns the digest to sign with the signer's certificate
//	@description	4. `PUT /v1/sessions/{sessionID}/signatures/{signatureID}` completes the signature
//	@description	5. `GET /v1/sessions/{sessionID}/container` downloads the signed container with data file contents
//	@description	6. `DELETE /v1/sessions/{sessionID}` closes the session
//	@description
//	@description	## Common Error Responses
//	@description	All endpoints may return:
//	@description	- `413` Request body exceeds size limit
//	@description	- `429` Rate limit exceeded
//	@description	- `500` Internal server error
//	@description	- `502` DigiDocService unavailable
//	@description
//	@description	## Request Limits
//	@description	- **Rate limiting**: requests per second per client address (see env vars), set to 0 to disable
//	@description	- **Request size limits**: configurable (see env vars), default 25MB
//	@description
//	@description	Check the X-Max-Request-Size response header for the configured limit.
//	@license.name	MIT

//	@servers.url			http://localhost:8080
//	@servers.description	Development server

//	@accept		json
//	@produce	json

//	@tag.name			Signing
//	@tag.description	Hashcode signing sessions

//	@tag.name			Common
//	@tag.description	Server API endpoints (jwks, health, readiness, version)

func main() {
	cmd := &cobra.Command{
		Use:   "hashcode-server",
		Short: "Hashcode container signing server",
		Long:  `hashcode-server runs BDOC and DDOC signing sessions against DigiDocService using hashcode containers`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	v := version.Get()
	cmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.NewServerConfig()
	if err != nil {
		log.Printf("failed to load configuration: %v", err.Error())
		os.Exit(1)
	}

	appLogger := logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)

	appLogger.Info("Configuration loaded",
		slog.String("ENVIRONMENT", cfg.Environment),
		slog.String("HOST", cfg.Host),
		slog.Int("PORT", cfg.Port),
		slog.String("LOG_LEVEL", cfg.LogLevel),
		slog.String("DDS_URL", cfg.DDSURL),
		slog.Duration("DDS_TIMEOUT", cfg.DDSTimeout),
		slog.String("DDS_SIGNING_PROFILE", cfg.DDSSigningProfile),
		slog.String("UPLOAD_DIR", cfg.UploadDir),
		slog.String("BDOC_DIGEST_ALGORITHM", cfg.BDOCDigestAlgorithm),
		slog.String("SESSION_STORE", cfg.SessionStore),
		slog.Duration("SESSION_MAX_AGE", cfg.SessionMaxAge),
		slog.Duration("SESSION_SWEEP_INTERVAL", cfg.SessionSweepInterval),
		slog.Int64("MAX_REQUEST_SIZE", cfg.MaxRequestSize),
		slog.Bool("TOKEN_CONFIGURED", cfg.TokenPKCS12Path != ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := services.NewServices(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize services", slog.String("error", err.Error()))
		return err
	}

	appLogger.Info("Starting server", slog.String("version", version.Get().Version))

	srv := server.NewServer(cfg, svc, appLogger)
	defer srv.Shutdown()

	if err := srv.Start(ctx); err != nil {
		appLogger.Error("Server error", slog.String("error", err.Error()))
		return err
	}

	appLogger.Info("server shutdown complete")
	return nil
}
