package config

import (
	"context"
	"time"

	"kairos/commons/routes"
	cache "kairos/internal/cache/iface"
	redisCache "kairos/internal/cache/redis"
	coordinator "kairos/internal/coordinator/iface"
	zkCoordinator "kairos/internal/coordinator/zk"
	"kairos/internal/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx/fxevent"
)

// NewLogger builds the application logger; dev mode uses zap's console encoder
func NewLogger(level string, dev bool) (logger.Logger, error) {
	if dev {
		return logger.NewZapLoggerForDev()
	}
	return logger.NewZapLogger(level)
}

// ProvideFxLogger creates the FX event logger using the application logger
func ProvideFxLogger(log logger.Logger) fxevent.Logger {
	return &fxevent.ZapLogger{
		Logger: logger.Zap(log),
	}
}

// ProvideRouteDependencies creates route dependencies
func ProvideRouteDependencies(log logger.Logger) routes.RouteDependencies {
	return routes.RouteDependencies{
		Logger: log,
	}
}

// ProvideRouter creates and configures the Gin router with all routes
func ProvideRouter(
	config routes.RouterConfig,
	deps routes.RouteDependencies,
	routeInitializer func(*gin.Engine, routes.RouteDependencies),
) *gin.Engine {
	router := routes.NewRouter(config, deps)
	routeInitializer(router, deps)
	return router
}

// NewAWSConfig loads the default AWS config. A non-empty endpoint means a local
// emulator (LocalStack, DynamoDB Local), which gets static dummy credentials.
func NewAWSConfig(ctx context.Context, region, endpoint string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", "")))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// NewSQSClient provides an SQS client (for LocalStack or AWS)
func NewSQSClient(ctx context.Context, region, endpoint string) (*sqs.Client, error) {
	cfg, err := NewAWSConfig(ctx, region, endpoint)
	if err != nil {
		return nil, err
	}
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// NewDynamoDBClient provides a DynamoDB client (for DynamoDB Local or AWS)
func NewDynamoDBClient(ctx context.Context, region, endpoint string) (*awsdynamodb.Client, error) {
	cfg, err := NewAWSConfig(ctx, region, endpoint)
	if err != nil {
		return nil, err
	}
	return awsdynamodb.NewFromConfig(cfg, func(o *awsdynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// NewRedisCache provides a Redis cache client
func NewRedisCache(addr, password string, db int, log logger.Logger) (cache.Cache, error) {
	return redisCache.NewRedisCache(addr, password, db, log)
}

// NewZooKeeperLocker provides a ZooKeeper-backed lock for scheduler instances
func NewZooKeeperLocker(servers []string, sessionTimeout time.Duration, root, owner string, log logger.Logger) (coordinator.Locker, error) {
	return zkCoordinator.NewZKCoordinator(servers, sessionTimeout, root, owner, log)
}
