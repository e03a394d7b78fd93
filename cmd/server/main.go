package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/diarization-splitter/internal/cleanup"
	"github.com/codebuildervaibhav/diarization-splitter/internal/config"
	"github.com/codebuildervaibhav/diarization-splitter/internal/handlers"
	"github.com/codebuildervaibhav/diarization-splitter/internal/logging"
	"github.com/codebuildervaibhav/diarization-splitter/internal/media"
	"github.com/codebuildervaibhav/diarization-splitter/internal/queue"
	"github.com/codebuildervaibhav/diarization-splitter/internal/storage"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logging.Init(logging.Options{})
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	logBuffer := logging.NewLogBuffer(logging.DefaultBufferLines)
	log := logging.Init(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}, logBuffer)

	if err := cleanup.EnsureTempDirExists(cfg.Storage.TempDir); err != nil {
		log.Fatal().Err(err).Msg("failed to create temp directory")
	}
	if err := os.MkdirAll(cfg.Storage.OutputDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("failed to create output directory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("initializing components")

	executor, err := media.New(log, media.Options{
		FFmpegPath:  cfg.FFmpeg.FFmpegPath,
		FFprobePath: cfg.FFmpeg.FFprobePath,
		Threads:     cfg.FFmpeg.Threads,
		CopyCodec:   cfg.FFmpeg.CopyCodec,
		Preset:      cfg.FFmpeg.Preset,
		CRF:         cfg.FFmpeg.CRF,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize ffmpeg")
	}

	localStorage := storage.NewLocalStorage(cfg.Storage.OutputDir)

	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	var (
		publishers []storage.Publisher
		downloader handlers.DriveDownloader
	)
	if driveClient := setupDrive(ctx, log, cfg); driveClient != nil {
		publishers = append(publishers, driveClient)
		downloader = driveClient
	}
	if cfg.S3.Bucket != "" {
		s3Publisher, err := storage.NewS3Publisher(ctx, cfg.S3.Bucket, cfg.S3.Prefix)
		if err != nil {
			log.Warn().Err(err).Msg("S3 publishing not available")
		} else {
			publishers = append(publishers, s3Publisher)
			log.Info().Str("bucket", cfg.S3.Bucket).Msg("S3 publishing enabled")
		}
	}

	workerPool := queue.NewWorkerPool(log, queue.Config{
		Workers:    cfg.Workers.Count,
		ScratchDir: cfg.Storage.TempDir,
	}, executor, localStorage, db, publishers...)
	workerPool.Start(ctx)

	cleanupScheduler := cleanup.NewScheduler(log,
		cfg.Storage.TempDir,
		cfg.Cleanup.IntervalMinutes,
		cfg.Cleanup.MaxAgeHours,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.Limits.MaxFileSizeMB * 1024 * 1024,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{Output: io.MultiWriter(os.Stderr, logBuffer)}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	previewHandler := handlers.NewPreviewHandler()
	uploadHandler := handlers.NewUploadHandler(log, workerPool, cfg.Storage.TempDir, cfg.Limits.MaxFileSizeMB)
	gdriveHandler := handlers.NewGDriveHandler(log, workerPool, downloader, cfg.Storage.TempDir, cfg.Limits.MaxFileSizeMB)
	remoteHandler := handlers.NewRemoteHandler(log, workerPool, cfg.Storage.TempDir, cfg.Limits.MaxFileSizeMB)
	jobsHandler := handlers.NewJobsHandler(workerPool, db)
	streamHandler := handlers.NewStreamHandler(log, workerPool)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": version,
		})
	})

	app.Post("/preview", previewHandler.Handle)
	app.Post("/upload", uploadHandler.Handle)
	app.Post("/gdrive", gdriveHandler.Handle)
	app.Post("/remote", remoteHandler.Handle)

	app.Get("/jobs", jobsHandler.List)
	app.Get("/jobs/:id", jobsHandler.Status)
	app.Get("/jobs/:id/archive", jobsHandler.Archive)

	app.Get("/ws/jobs/:id", streamHandler.Upgrade, websocket.New(streamHandler.Handle))

	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": logBuffer.GetLogs(),
		})
	})

	addr := cfg.Addr()
	log.Info().Str("addr", addr).Msg("server starting")
	log.Info().Msg("endpoints: POST /preview /upload /gdrive /remote; GET /jobs /jobs/:id /jobs/:id/archive /ws/jobs/:id /logs /health")

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down gracefully")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	if err := app.Listen(addr); err != nil {
		log.Error().Err(err).Msg("server failed")
	}
	workerPool.Stop()
}

// setupDrive connects to Google Drive when credentials are configured
func setupDrive(ctx context.Context, log zerolog.Logger, cfg *config.Config) *storage.DriveClient {
	if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); err != nil {
		log.Info().Msg("Google Drive credentials not found, archives are saved locally only")
		return nil
	}

	driveClient, err := storage.NewDriveClient(ctx,
		cfg.GoogleDrive.CredentialsFile,
		cfg.GoogleDrive.TokenFile,
		cfg.GoogleDrive.FolderName,
	)
	if err != nil {
		log.Warn().Err(err).Msg("Google Drive not available, archives are saved locally only")
		return nil
	}

	log.Info().Msg("Google Drive integration enabled")
	return driveClient
}
