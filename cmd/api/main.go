package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"perfeval-api/internal/adapters"
	"perfeval-api/internal/middleware"
	"perfeval-api/internal/routers"
	"perfeval-api/internal/shared"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/manifold-inc/manifold-sdk/lib/eflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Flags / ENV Variables
	listenAddr := flag.String("listen-addr", ":8080", "Listen address")
	awsRegion := flag.String("aws-region", "us-west-2", "AWS region for Bedrock/SageMaker")
	statsDSN := flag.String("stats-dsn", "", "MySQL DSN for dispatch stats (optional)")
	redisAddr := flag.String("redis-addr", "", "Redis host:port (optional)")
	metricsAPIKey := flag.String("metrics-api-key", "", "Metrics api key")
	debug := flag.Bool("debug", false, "Debug enabled")

	openaiBaseURL := flag.String("openai-base-url", "", "External OpenAI-compatible base URL")
	openaiAPIKey := flag.String("openai-api-key", "", "External OpenAI-compatible API key")
	openaiModels := flag.String("openai-models", "", "Comma separated key=wireid pairs for the external endpoint")

	emdBaseURL := flag.String("emd-base-url", "", "EMD deployment base URL")
	emdModels := flag.String("emd-models", "", "Comma separated key=wireid:endpoint triples for EMD deployments")

	err := eflag.SetFlagsFromEnvironment()
	if err != nil {
		panic(err)
	}
	flag.Parse()

	var logger *zap.Logger
	if !*debug {
		logger, err = zap.NewProduction()
		if err != nil {
			panic("Failed init logger")
		}
	}
	if *debug {
		logger, err = zap.NewDevelopment()
		if err != nil {
			panic("Failed init logger")
		}
	}
	log := logger.Sugar()

	// Stats DB init (optional)
	var statsDB *sql.DB
	if *statsDSN != "" {
		statsDB, err = sql.Open("mysql", *statsDSN)
		if err != nil {
			panic(fmt.Sprintf("failed initializing sqlClient: %s", err))
		}
		if err := statsDB.Ping(); err != nil {
			panic(fmt.Sprintf("failed ping to sql db: %s", err))
		}
	}

	// Redis connection (optional)
	var redisClient *redis.Client
	if *redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     *redisAddr,
			Password: "",
			DB:       0,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			panic(fmt.Sprintf("failed ping to redis db: %s", err))
		}
	}

	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if statsDB != nil {
			_ = statsDB.Close()
		}
	}()

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(*awsRegion))
	if err != nil {
		panic(fmt.Sprintf("failed loading aws config: %s", err))
	}

	registry := adapters.BuildRegistry(log, adapters.Config{
		AWSConfig:     awsCfg,
		Region:        *awsRegion,
		OpenAIBaseURL: *openaiBaseURL,
		OpenAIAPIKey:  *openaiAPIKey,
		OpenAIModels:  parseModelPairs(*openaiModels),
		EMDBaseURL:    *emdBaseURL,
		EMDModels:     parseEMDModels(*emdModels),
		Redis:         redisClient,
	})

	e := echo.New()
	e.GET(("/ping"), func(c echo.Context) error {
		return c.String(200, "")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiKey, err := shared.ExtractAPIKey(c)
			if err != nil {
				return c.String(401, "Missing or invalid API key")
			}

			if apiKey != *metricsAPIKey {
				return c.String(401, "Unauthorized API key")
			}
			return next(c)
		}
	})
	base := e.Group("")
	base.Use(emw.CORS())
	base.Use(middleware.NewRecoverMiddleware(log))
	base.Use(middleware.NewTrackMiddleware(log))

	shutdown, err := routers.RegisterInvokeRoutes(base, registry, statsDB, log, *debug)
	if err != nil {
		panic(err)
	}
	defer shutdown()

	go func() {
		if err := e.Start(*listenAddr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), shared.DefaultShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
}

// parseModelPairs parses "key=wireid,key2=wireid2".
func parseModelPairs(s string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		out[parts[0]] = parts[1]
	}
	return out
}

// parseEMDModels parses "key=wireid:endpoint,...". The endpoint part is
// optional; it defaults to "emd-<wireid>".
func parseEMDModels(s string) map[string]adapters.EMDModel {
	out := map[string]adapters.EMDModel{}
	for key, val := range parseModelPairs(s) {
		wireID, endpoint, found := strings.Cut(val, ":")
		if !found || endpoint == "" {
			endpoint = "emd-" + wireID
		}
		out[key] = adapters.EMDModel{WireID: wireID, Endpoint: endpoint}
	}
	return out
}
