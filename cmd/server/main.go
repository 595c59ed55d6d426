// Fern resolves a member directory: it ingests raw rosters from Kafka,
// normalizes and deduplicates them into canonical member records, and serves
// search, merge, and history APIs over HTTP. This binary wires the pieces
// together; the logic lives under pkg/ and internal/.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/changelog"
	"github.com/Ramsey-B/fern/internal/repositories/duplicategroup"
	"github.com/Ramsey-B/fern/internal/repositories/importbatch"
	"github.com/Ramsey-B/fern/internal/repositories/member"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/directory"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/inference"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/processor"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/Ramsey-B/fern/pkg/ranking"
	"github.com/Ramsey-B/fern/pkg/records"
	"github.com/Ramsey-B/fern/pkg/redis"
	duplicateroutes "github.com/Ramsey-B/fern/pkg/routes/duplicate"
	graphroutes "github.com/Ramsey-B/fern/pkg/routes/graph"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	memberroutes "github.com/Ramsey-B/fern/pkg/routes/member"
	searchroutes "github.com/Ramsey-B/fern/pkg/routes/search"
	statsroutes "github.com/Ramsey-B/fern/pkg/routes/stats"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
	"github.com/Ramsey-B/fern/pkg/vocab"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A local .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otlpCfg := exporters.DefaultOTLPConfig()
	otlpCfg.Endpoint = cfg.TracingEndpoint
	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: cfg.AppName,
		Enabled:     cfg.TracingEnabled,
		Exporter:    cfg.TracingExporter,
		OTLP:        otlpCfg,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		os.Exit(1)
	}

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		logger.WithError(err).Error("Failed to create DI container")
		os.Exit(1)
	}
	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		logger.WithError(err).Error("Failed to register logger")
		os.Exit(1)
	}

	app := &application{
		cfg:       cfg,
		logger:    logger,
		container: container,
	}

	runner := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	runner.AddDependency(&dependency{name: "database", start: app.startDatabase, stop: app.stopDatabase})
	runner.AddDependency(&dependency{name: "migrations", dependsOn: []string{"database"}, start: app.runMigrations})
	runner.AddDependency(&dependency{name: "kafka-producer", start: app.startProducer, stop: app.stopProducer})
	runner.AddDependency(&dependency{name: "redis", start: app.startRedis, stop: app.stopRedis})
	runner.AddDependency(&dependency{name: "graph", start: app.startGraph, stop: app.stopGraph})
	runner.AddDependency(&dependency{
		name:      "pipeline",
		dependsOn: []string{"migrations", "kafka-producer", "redis", "graph"},
		start:     app.buildPipeline,
	})
	runner.AddDependency(&dependency{
		name:      "kafka-consumer",
		dependsOn: []string{"pipeline"},
		start:     app.startConsumers,
		stop:      app.stopConsumers,
	})
	runner.AddDependency(&dependency{
		name:      "http-server",
		dependsOn: []string{"pipeline", "kafka-consumer"},
		start:     app.startServer,
		stop:      app.stopServer,
	})

	if err := runner.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		_ = runner.Stop(ctx)
		os.Exit(1)
	}

	logger.WithFields(map[string]any{
		"port":    app.cfg.Port,
		"version": version,
	}).Infof("%s is ready", cfg.AppName)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutdown signal received")
	if app.health != nil {
		app.health.SetReady(false)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := runner.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to flush tracing")
	}
	logger.Info("Shutdown complete")
}

// application holds the handles the startup dependencies create. Start
// functions fill it in order; stop functions release in reverse.
type application struct {
	cfg       *config.Config
	logger    ectologger.Logger
	container ectocontainer.DIContainer

	db          database.DB
	members     *member.Repository
	changeLog   *changelog.Repository
	groups      *duplicategroup.Repository
	batches     *importbatch.Repository
	producer    *kafka.Producer
	emitter     *events.Emitter
	redisClient *redis.Client
	graphClient *graph.Client
	network     *graph.NetworkService
	projection  *graph.Projection
	proc        *processor.Processor
	consumers   []*kafka.Consumer
	health      *health.Checker
	echo        *echo.Echo
}

func (a *application) startDatabase(ctx context.Context) error {
	port, err := strconv.Atoi(a.cfg.DatabasePort)
	if err != nil {
		return fmt.Errorf("invalid database port %q: %w", a.cfg.DatabasePort, err)
	}

	db, err := database.Connect(ctx, database.ConnectionConfig{
		Host:            a.cfg.DatabaseHost,
		Port:            port,
		User:            a.cfg.DatabaseUserName,
		Password:        a.cfg.DatabasePassword,
		Name:            a.cfg.DatabaseName,
		SSLMode:         a.cfg.DatabaseSSLMode,
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}
	a.db = db
	a.members = member.NewRepository(db, a.logger)
	a.changeLog = changelog.NewRepository(db, a.logger)
	a.groups = duplicategroup.NewRepository(db, a.logger)
	a.batches = importbatch.NewRepository(db, a.logger)

	if err := ectoinject.RegisterInstance[database.DB](a.container, db); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*member.Repository](a.container, a.members); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*changelog.Repository](a.container, a.changeLog); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*duplicategroup.Repository](a.container, a.groups); err != nil {
		return err
	}
	return ectoinject.RegisterInstance[*importbatch.Repository](a.container, a.batches)
}

func (a *application) stopDatabase(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *application) runMigrations(ctx context.Context) error {
	driver, err := database.NewPostgresDriver(a.db.Unsafe())
	if err != nil {
		return err
	}
	svc := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             uint(a.cfg.DatabaseMigrationVersion),
		Force:               a.cfg.DatabaseMigrationForce,
		AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
	})
	return svc.Migrate(a.cfg.DatabaseName, driver)
}

func (a *application) startProducer(ctx context.Context) error {
	a.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      a.cfg.KafkaBrokers,
		Topic:        a.cfg.KafkaEventsTopic,
		BatchSize:    a.cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: a.cfg.KafkaRequiredAcks,
		Compression:  a.cfg.KafkaCompression,
	}, a.logger)
	a.emitter = events.NewEmitter(a.producer, a.logger)
	return nil
}

func (a *application) stopProducer(ctx context.Context) error {
	if a.producer == nil {
		return nil
	}
	return a.producer.Close()
}

func (a *application) startRedis(ctx context.Context) error {
	if !a.cfg.RedisEnabled {
		a.logger.WithContext(ctx).Info("Redis disabled; search results will not be cached")
		return nil
	}

	client, err := redis.NewClient(redis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return err
	}
	a.redisClient = client

	cache := redis.NewSearchCache(client, a.logger, a.cfg.SearchCacheTTL)
	return ectoinject.RegisterInstance[*redis.SearchCache](a.container, cache)
}

func (a *application) stopRedis(ctx context.Context) error {
	if a.redisClient == nil {
		return nil
	}
	return a.redisClient.Close()
}

func (a *application) startGraph(ctx context.Context) error {
	if !a.cfg.GraphEnabled {
		a.logger.WithContext(ctx).Info("Graph projection disabled")
		return nil
	}

	client, err := graph.NewClient(graph.Config{
		URI:      a.cfg.GraphURI,
		Username: a.cfg.GraphUser,
		Password: a.cfg.GraphPassword,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("graph database unreachable: %w", err)
	}
	a.graphClient = client
	a.network = graph.NewNetworkService(client, a.logger)
	a.projection = graph.NewProjection(client, a.logger)

	if err := ectoinject.RegisterInstance[*graph.NetworkService](a.container, a.network); err != nil {
		return err
	}
	return ectoinject.RegisterInstance[*graph.Projection](a.container, a.projection)
}

func (a *application) stopGraph(ctx context.Context) error {
	if a.graphClient == nil {
		return nil
	}
	return a.graphClient.Close(ctx)
}

// buildPipeline constructs the normalization, inference, matching, and
// search components and registers the handler-facing services. Everything
// here is pure construction; connection failures surface earlier.
func (a *application) buildPipeline(ctx context.Context) error {
	vocabulary, err := vocab.Load(a.cfg.VocabFilePath)
	if err != nil {
		return err
	}

	normalizer := normalizers.New(vocabulary, normalizers.Config{
		BatchPivotYear: a.cfg.BatchPivotYear,
		BatchMinYear:   a.cfg.BatchMinYear,
	})
	builder := records.NewBuilder(a.logger, normalizer)
	engine := inference.NewEngine(a.logger, vocabulary, inference.EngineConfig{
		MinConfidence: a.cfg.MinInferenceConfidence,
	})
	parser := query.NewParser(a.logger, normalizer)
	ranker := ranking.NewRanker(a.logger, vocabulary, ranking.RankerConfig{
		MaxServiceResults:   a.cfg.ServiceResultLimit,
		MaxDirectoryResults: a.cfg.DirectoryResultLimit,
	})
	detector := matching.NewDetector(a.logger, matching.DetectorConfig{
		SimilarityThreshold: a.cfg.SimilarityThreshold,
		WorkerCount:         a.cfg.DetectWorkerCount,
		MaxComparisons:      a.cfg.MaxComparisons,
	})

	detection := matching.NewService(a.logger, detector, a.members, a.groups, a.emitter)
	merger := merging.NewService(a.logger, a.members, a.groups, a.changeLog, a.emitter, a.projection)
	writer := directory.NewService(a.logger, builder, engine, a.members, a.changeLog, a.emitter, a.projection)
	a.proc = processor.NewProcessor(
		a.logger, builder, normalizer, engine,
		a.members, a.changeLog, a.batches,
		detection, a.emitter, a.projection,
		a.cfg.NameMatchThreshold,
	)

	if err := ectoinject.RegisterInstance[*query.Parser](a.container, parser); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*ranking.Ranker](a.container, ranker); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*matching.Service](a.container, detection); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*merging.Service](a.container, merger); err != nil {
		return err
	}
	return ectoinject.RegisterInstance[*directory.Service](a.container, writer)
}

func (a *application) startConsumers(ctx context.Context) error {
	if !a.cfg.KafkaConsumerEnabled {
		a.logger.WithContext(ctx).Info("Kafka consumer disabled; import pipeline is idle")
		return nil
	}

	workers := a.cfg.KafkaConsumerWorkers
	if workers < 1 {
		workers = 1
	}

	// Each worker is its own reader in the shared consumer group, so
	// partitions spread across them.
	for i := 0; i < workers; i++ {
		consumer := kafka.NewConsumer(*a.cfg, a.logger, a.proc.ProcessMessage)
		if err := consumer.Start(ctx); err != nil {
			return err
		}
		a.consumers = append(a.consumers, consumer)
	}
	return nil
}

func (a *application) stopConsumers(ctx context.Context) error {
	var lastErr error
	for _, consumer := range a.consumers {
		if err := consumer.Stop(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (a *application) startServer(ctx context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = a.cfg.MaxHeaderBytes

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
		AllowMethods: a.cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))
	e.HTTPErrorHandler = middleware.Error(a.logger)

	var firstConsumer *kafka.Consumer
	if len(a.consumers) > 0 {
		firstConsumer = a.consumers[0]
	}
	a.health = health.NewChecker(a.db, a.redisClient, firstConsumer, a.graphClient, version)
	a.health.RegisterRoutes(e)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	memberroutes.Register(api.Group("/members"))
	searchroutes.Register(api.Group("/search"))
	duplicateroutes.Register(api.Group("/duplicates"))
	statsroutes.Register(api.Group("/stats"))
	graphroutes.NewHandler(a.network, a.projection, a.logger).Register(api.Group("/graph"))

	a.echo = e

	go func() {
		if err := e.Start(fmt.Sprintf(":%d", a.cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()

	a.health.SetReady(true)
	a.logger.WithContext(ctx).Infof("HTTP server listening on :%d", a.cfg.Port)
	return nil
}

func (a *application) stopServer(ctx context.Context) error {
	if a.echo == nil {
		return nil
	}
	return a.echo.Shutdown(ctx)
}

// dependency adapts plain start/stop funcs to the startup runner.
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string     { return d.name }
func (d *dependency) DependsOn() []string { return d.dependsOn }

func (d *dependency) Start(ctx context.Context) error {
	if d.start == nil {
		return nil
	}
	return d.start(ctx)
}

func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}

// newLogger bridges ectologger onto zap so log output is structured JSON in
// production and human readable with PRETTY_LOGS=true.
func newLogger(cfg *config.Config) ectologger.Logger {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	zapLogger, err := zapCfg.Build(zap.WithCaller(false))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	sugar := zapLogger.Sugar()

	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		fields := make([]any, 0, len(msg.Fields)*2+2)
		for key, value := range msg.Fields {
			fields = append(fields, key, value)
		}
		if msg.Err != nil {
			fields = append(fields, "error", msg.Err)
		}

		switch string(msg.Level) {
		case "debug":
			sugar.Debugw(msg.Message, fields...)
		case "warn", "warning":
			sugar.Warnw(msg.Message, fields...)
		case "error", "fatal":
			sugar.Errorw(msg.Message, fields...)
		default:
			sugar.Infow(msg.Message, fields...)
		}
	})
}
