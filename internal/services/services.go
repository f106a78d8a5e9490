package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/redis/go-redis/v9"

	"github.com/eid-tools/dds-hashcode/internal/config"
	"github.com/eid-tools/dds-hashcode/internal/crypto"
	"github.com/eid-tools/dds-hashcode/internal/database"
	"github.com/eid-tools/dds-hashcode/internal/dds"
	"github.com/eid-tools/dds-hashcode/internal/sessionstore"
	"github.com/eid-tools/dds-hashcode/internal/signing"
)

// Services aggregates the integrations used by the signing server.
type Services struct {
	Signing *signing.Service

	// Token is the local signing token, nil when TOKEN_PKCS12_PATH is not set
	Token crypto.TokenSigner

	// JWKS holds the public key of Token (nil without a token)
	JWKS jwk.Set

	// Queries is set when sessions are stored in PostgreSQL (used by the readiness check)
	Queries *database.Queries

	// StoreName is the configured SESSION_STORE
	StoreName string

	pool   *pgxpool.Pool
	redis  *redis.Client
	logger *slog.Logger
}

// NewServices creates the service implementations based on configuration.
// This is the single entry point for initializing the DigiDocService client, the session store and the signing token.
func NewServices(ctx context.Context, cfg *config.ServerEnvironment, logger *slog.Logger) (*Services, error) {
	s := &Services{
		StoreName: cfg.SessionStore,
		logger:    logger,
	}

	store, err := s.newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.TokenPKCS12Path != "" {
		token, err := crypto.LoadPKCS12Signer(cfg.TokenPKCS12Path, cfg.TokenPKCS12Password)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to load signing token: %w", err)
		}
		if cfg.TokenChainPath != "" {
			chain, err := crypto.LoadCertificateChain(cfg.TokenChainPath)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("failed to load token certificate chain: %w", err)
			}
			if err := token.AddChain(chain); err != nil {
				s.Close()
				return nil, fmt.Errorf("failed to load token certificate chain: %w", err)
			}
		}
		jwks, err := crypto.PublicKeyToJWKSet(token)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create JWK set: %w", err)
		}
		s.Token = token
		s.JWKS = jwks
		logger.Info("signing token loaded",
			slog.String("subject", token.Certificate().Subject.CommonName),
			slog.Time("not_after", token.Certificate().NotAfter),
			slog.Int("chain_length", len(token.Chain())),
		)
	}

	bdocDigest, err := crypto.ParseAlgorithm(cfg.BDOCDigestAlgorithm)
	if err != nil {
		s.Close()
		return nil, err
	}

	client := dds.NewClient(dds.Config{
		Endpoint: cfg.DDSURL,
		Timeout:  cfg.DDSTimeout,
	}, logger)

	s.Signing, err = signing.NewService(client, store, signing.Config{
		UploadDir:      cfg.UploadDir,
		SigningProfile: cfg.DDSSigningProfile,
		BDOCDigest:     bdocDigest,
	}, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// newStore connects the configured session store
func (s *Services) newStore(ctx context.Context, cfg *config.ServerEnvironment) (signing.Store, error) {
	switch cfg.SessionStore {
	case "postgres":
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		s.pool = pool
		s.Queries = database.New(pool)
		s.logger.Info("connected to PostgreSQL")
		return sessionstore.NewPostgres(s.Queries), nil

	case "redis":
		client, err := sessionstore.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		s.redis = client
		s.logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))
		// keys outlive the sweep so expired sessions are still found and closed remotely
		return sessionstore.NewRedis(client, cfg.SessionMaxAge+2*cfg.SessionSweepInterval), nil

	case "memory", "":
		return sessionstore.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
}

// Close releases the store connections
func (s *Services) Close() {
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
		s.logger.Info("database connection closed")
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("failed to close Redis client", slog.String("error", err.Error()))
		}
		s.redis = nil
	}
}
