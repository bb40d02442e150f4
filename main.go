package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/timeclock-bot/timeclock/internal/bot"
	"github.com/timeclock-bot/timeclock/internal/config"
	"github.com/timeclock-bot/timeclock/internal/database"
	"github.com/timeclock-bot/timeclock/internal/worklog"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

func main() {
	// A local .env is a convenience for development; all config is env vars
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	if cfg.Token == "" {
		logrus.Fatal("TIMECLOCK_TOKEN must be set")
	}

	logger := newLogger(cfg.LogFile)

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatalf("failed to load timezone %q: %v", cfg.Timezone, err)
	}

	db, err := openDB(cfg)
	if err != nil {
		logger.Fatalf("failed to connect to the DB: %v", err)
	}
	if err := db.Ping(); err != nil {
		logger.Fatalf("failed to ping the DB: %v", err)
	}
	if err := db.SetMaxIdleConns(2); err != nil {
		logger.Warnf("failed to set max idle conns: %v", err)
	}
	if err := db.AddDatabaseTables(); err != nil {
		logger.Fatalf("failed to add database tables: %v", err)
	}
	if err := db.CreateIndices(); err != nil {
		logger.Fatalf("failed to create indices: %v", err)
	}

	var statsdClient *statsd.Client
	if cfg.StatsdAddr != "" {
		statsdClient, err = statsd.New(cfg.StatsdAddr)
		if err != nil {
			logger.Warnf("failed to start statsd client: %v", err)
		}
	}

	svc := worklog.New(db, loc, cfg.WindowDays)
	b := bot.New(svc,
		bot.WithLogger(logger),
		bot.WithPrefix(cfg.Prefix),
		bot.WithAdmins(cfg.Admins()),
		bot.WithStatsd(statsdClient),
	)
	gateway, err := bot.NewGateway(cfg.Token, b, logger)
	if err != nil {
		logger.Fatalf("failed to create Discord session: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gateway.Run(ctx); err != nil {
		logger.Errorf("gateway stopped: %v", err)
	}
	if err := db.Close(); err != nil {
		logger.Errorf("failed to close the DB: %v", err)
	}
}

func openDB(cfg *config.Config) (*database.DB, error) {
	// TranslateError surfaces unique-index violations as gorm.ErrDuplicatedKey,
	// which backs the once-per-day guarantee under concurrent writers
	gormConfig := &gorm.Config{TranslateError: true}
	if cfg.IsSQLite() {
		return database.OpenSQLite(cfg.DB, gormConfig)
	}
	return database.OpenPostgres(cfg.DB, gormConfig)
}

func newLogger(logFile string) *logrus.Logger {
	logFormatter := new(logrus.TextFormatter)
	logFormatter.TimestampFormat = time.RFC3339
	logFormatter.FullTimestamp = true

	logger := logrus.New()
	logger.SetFormatter(logFormatter)
	logger.SetLevel(logrus.InfoLevel)
	if logFile != "" {
		logger.SetOutput(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    1, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
		})
	}
	return logger
}
