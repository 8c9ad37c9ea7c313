package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/repository"
	"github.com/noah-isme/course-enrollment-api/internal/service"
	"github.com/noah-isme/course-enrollment-api/pkg/cache"
	"github.com/noah-isme/course-enrollment-api/pkg/config"
	"github.com/noah-isme/course-enrollment-api/pkg/database"
	"github.com/noah-isme/course-enrollment-api/pkg/logger"
)

func main() {
	var (
		fix           bool
		resetWaitlist bool
		timeout       time.Duration
	)
	flag.BoolVar(&fix, "fix", false, "Set each course's student count to its approved request count")
	flag.BoolVar(&resetWaitlist, "reset-waitlist", false, "Raise short waitlists to the pending request count")
	flag.DurationVar(&timeout, "timeout", time.Minute, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var cacheSvc *service.CacheService
	if client, err := cache.NewRedis(ctx, cfg.Redis); err != nil {
		logr.Warn("redis unavailable, dashboard cache will not be invalidated", zap.Error(err))
	} else if client != nil {
		defer client.Close() //nolint:errcheck
		cacheSvc = service.NewCacheService(repository.NewCacheRepository(client), nil, cfg.Dashboard.CacheTTL, logr, true)
	}

	svc := service.NewReconcileService(repository.NewCourseRepository(db), repository.NewEnrollmentStore(db), cacheSvc, logr)
	report, err := svc.Reconcile(ctx, service.ReconcileOptions{Fix: fix, ResetWaitlist: resetWaitlist})
	if err != nil {
		logr.Fatal("reconcile failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logr.Fatal("failed to write report", zap.Error(err))
	}

	if len(report.Drifted) > report.Fixed {
		os.Exit(1)
	}
}
