package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"mediaconv/api"
	"mediaconv/config"
	"mediaconv/ffmpeg"
	"mediaconv/logging"
	"mediaconv/pipeline"
	"mediaconv/task"
	"mediaconv/throttle"
	"mediaconv/ytdlp"
)

// jobGrace bounds how long shutdown waits for running jobs.
const jobGrace = 30 * time.Second

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		baseLog := logging.Base()
		baseLog.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Configure(logging.Config{Level: cfg.LogLevel})
	log := logging.WithComponent("main")

	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.StorageDir).Msg("failed to create storage directory")
	}

	// 2. External tools
	extra, err := ytdlp.ParseExtraArgs(cfg.YtdlpExtraArgs)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid YTDLP_EXTRA_ARGS")
	}
	downloader, err := ytdlp.NewClient(cfg.YtdlpBin, extra)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize yt-dlp client")
	}
	runner, err := ffmpeg.NewRunner(cfg.FFmpegBin)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize ffmpeg runner")
	}
	prober := ffmpeg.NewProber(cfg.FFprobeBin, cfg.ProbeTimeout)

	// 3. Task manager driving the conversion pipeline
	guard := throttle.NewGuard(throttle.Limits{
		IdleCPU:  cfg.ThrottleCPU,
		FreeMem:  cfg.ThrottleFreeMem,
		FreeDisk: cfg.ThrottleFreeDisk,
		Dir:      cfg.StorageDir,
	})
	jobs := pipeline.New(cfg, downloader, prober, runner)
	taskManager, err := task.NewManager(cfg, task.NewStore(), jobs, guard)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize task manager")
	}

	// 4. Router and server
	router := api.SetupRouter(taskManager, downloader, prober, cfg)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.WithCORS(router, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	taskManager.Start(gctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("storage", cfg.StorageDir).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		stop()
		log.Info().Msg("shutting down gracefully, press Ctrl+C again to force")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
	}

	// Workers stop picking up jobs once gctx is done; running jobs finish.
	done := make(chan struct{})
	go func() {
		taskManager.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(jobGrace):
		log.Warn().Dur("grace", jobGrace).Msg("jobs still running at exit")
	}

	log.Info().Msg("server exiting")
}
