package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/apisync/internal/config"
	"github.com/xxxsen/apisync/internal/handler"
	"github.com/xxxsen/apisync/internal/job"
	"github.com/xxxsen/apisync/internal/schedule"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "apisync",
		Short:         "sync remote JSON feeds into local records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the scheduler and http server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer app.Close()
			return runServer(app)
		},
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(newSyncCmd(&configPath))
	rootCmd.AddCommand(newJobCmd(&configPath))
	rootCmd.AddCommand(newPurgeCmd(&configPath))
	rootCmd.AddCommand(newHashKeyCmd())

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
	return cfg, nil
}

func runServer(app *App) error {
	cfg := app.Config
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("schedule", cfg.Schedule.Spec),
	)

	deps := handler.RouterDeps{
		Trigger:          handler.NewTriggerHandler(app.Jobs, app.Gate),
		Jobs:             handler.NewJobHandler(app.Jobs, app.Gate),
		Files:            handler.NewFileHandler(app.Store, app.Assets),
		AdminKeyHash:     cfg.Admin.KeyHash,
		TriggerRateLimit: time.Duration(cfg.Trigger.RateLimitSeconds) * time.Second,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var scheduler schedule.Scheduler
	if !cfg.Schedule.Disabled {
		cron := schedule.NewCronScheduler()
		if err := cron.AddJob(job.NewSyncTickJob(app.Gate), cfg.Schedule.Spec); err != nil {
			return fmt.Errorf("schedule sync tick: %w", err)
		}
		cron.Start(ctx)
		scheduler = cron
	}

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	if scheduler != nil {
		scheduler.Stop()
	}
	return nil
}
