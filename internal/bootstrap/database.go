package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clearpix/clearpix-go/config"
	"github.com/clearpix/clearpix-go/internal/migrate"
)

// DatabaseConfig contains configuration for database connections.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

const connectTimeout = 5 * time.Second

// ConnectDB establishes a pgx connection pool to PostgreSQL and verifies it
// with a bounded ping.
func ConnectDB(ctx context.Context, cfg DatabaseConfig) (*pgxpool.Pool, error) {
	// url.URL handles credentials with special characters safely.
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.DBConfig.User, cfg.DBConfig.Password),
		Host:     net.JoinHostPort(cfg.DBConfig.Host, strconv.Itoa(cfg.DBConfig.Port)),
		Path:     "/" + cfg.DBConfig.Name,
		RawQuery: url.Values{"sslmode": {cfg.DBConfig.SSLMode}}.Encode(),
	}

	poolCfg, err := pgxpool.ParseConfig(u.String())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = 25
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if pingErr := pool.Ping(pingCtx); pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("database connected",
			"host", cfg.DBConfig.Host,
			"port", cfg.DBConfig.Port,
			"database", cfg.DBConfig.Name,
		)
	}
	return pool, nil
}

// ConnectRedis builds a direct, sentinel, or cluster client per configuration
// and verifies it with a bounded ping.
//
//nolint:ireturn // returning redis.UniversalClient lets us pick single, sentinel, or cluster clients at runtime.
func ConnectRedis(cfg DatabaseConfig) (redis.UniversalClient, error) {
	rc := cfg.RedisConfig

	var client redis.UniversalClient
	var addrDesc string

	switch {
	case rc.UseCluster:
		addrs := trimAddrs(rc.ClusterNodes)
		if len(addrs) == 0 {
			return nil, errors.New("redis cluster configuration requires at least one address")
		}
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    addrs,
			Password: rc.Password,
		})
		addrDesc = "cluster:" + strings.Join(addrs, ",")

	case rc.UseSentinel:
		if len(rc.SentinelNodes) == 0 {
			return nil, errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       rc.SentinelMasterName,
			SentinelAddrs:    rc.SentinelNodes,
			Password:         rc.Password,
			SentinelPassword: rc.SentinelPassword,
			DB:               rc.DB,
		})
		addrDesc = "sentinel:" + rc.SentinelMasterName

	default:
		uri := strings.TrimSpace(rc.URI)
		if uri == "" {
			return nil, errors.New("redis configuration requires a URI")
		}
		if strings.HasPrefix(uri, "redis://") || strings.HasPrefix(uri, "rediss://") {
			opt, err := redis.ParseURL(uri)
			if err != nil {
				return nil, fmt.Errorf("parse redis url: %w", err)
			}
			client = redis.NewClient(opt)
			addrDesc = opt.Addr
		} else {
			client = redis.NewClient(&redis.Options{
				Addr:     uri,
				Password: rc.Password,
				DB:       rc.DB,
			})
			addrDesc = uri
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}

	if cfg.Logger != nil {
		// Strip anything that looks like credentials before logging.
		if i := strings.LastIndex(addrDesc, "@"); i > -1 {
			addrDesc = addrDesc[i+1:]
		}
		cfg.Logger.Info("redis connected", "addr", addrDesc)
	}
	return client, nil
}

func trimAddrs(raw []string) []string {
	result := make([]string, 0, len(raw))
	for _, addr := range raw {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if err := migrate.Run(ctx, pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}
	return nil
}
