// Package engine assembles the academic record services over a PostgreSQL
// store and an optional Redis statistics cache.
package engine

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/internal/outbox"
	"github.com/noah-isme/academic-records/internal/repository"
	"github.com/noah-isme/academic-records/internal/service"
	"github.com/noah-isme/academic-records/pkg/cache"
	"github.com/noah-isme/academic-records/pkg/config"
	"github.com/noah-isme/academic-records/pkg/database"
)

// Engine exposes every operation through its services.
type Engine struct {
	Users      *service.UserService
	Students   *service.StudentService
	Teachers   *service.TeacherService
	Courses    *service.CourseService
	Grades     *service.GradeService
	Attendance *service.AttendanceService
	GPA        *service.GPAService
	Metrics    *service.MetricsService
	Events     *outbox.Dispatcher

	db     *sqlx.DB
	redis  *redis.Client
	logger *zap.Logger
}

// Option customises engine construction.
type Option func(*options)

type options struct {
	eventHandler outbox.Handler
}

// WithEventHandler routes dispatched events to h instead of the log.
func WithEventHandler(h outbox.Handler) Option {
	return func(o *options) { o.eventHandler = h }
}

// New wires the services over an open database. redisClient may be nil, in
// which case statistics are always computed from the store.
func New(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{eventHandler: outbox.LogHandler(logger.Named("events"))}
	for _, opt := range opts {
		opt(&o)
	}
	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)

	statsCache := service.NewCacheService(
		repository.NewCacheRepository(redisClient),
		metrics,
		cfg.Stats.CacheTTL,
		logger.Named("cache"),
		cfg.Stats.CacheEnabled && redisClient != nil,
	)

	policy := service.CoursePolicy{RequireInProgress: cfg.Enrollment.RequireInProgress}

	return &Engine{
		Users:      service.NewUserService(userRepo, service.BcryptHasher{}, validate, logger.Named("users")),
		Students:   service.NewStudentService(studentRepo, userRepo, validate, logger.Named("students")),
		Teachers:   service.NewTeacherService(teacherRepo, userRepo, validate, logger.Named("teachers")),
		Courses:    service.NewCourseService(courseRepo, enrollmentRepo, teacherRepo, studentRepo, policy, validate, metrics, logger.Named("courses")),
		Grades:     service.NewGradeService(gradeRepo, studentRepo, courseRepo, statsCache, validate, metrics, logger.Named("grades")),
		Attendance: service.NewAttendanceService(attendanceRepo, studentRepo, courseRepo, statsCache, validate, metrics, logger.Named("attendance")),
		GPA:        service.NewGPAService(gradeRepo, studentRepo, statsCache, metrics, logger.Named("gpa")),
		Metrics:    metrics,
		Events: outbox.NewDispatcher(o.eventHandler, outbox.Config{
			Workers:    cfg.Outbox.Workers,
			BufferSize: cfg.Outbox.BufferSize,
			MaxRetries: cfg.Outbox.MaxRetries,
			RetryDelay: cfg.Outbox.RetryDelay,
			Recorder:   metrics,
			Logger:     logger.Named("outbox"),
		}),
		db:     db,
		redis:  redisClient,
		logger: logger,
	}
}

// Open connects to PostgreSQL and, when enabled, Redis, then wires the engine.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis, cfg.Stats.CacheEnabled)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return New(cfg, db, redisClient, logger, opts...), nil
}

// Start begins event dispatch.
func (e *Engine) Start(ctx context.Context) {
	e.Events.Start(ctx)
}

// Publish hands the events returned by an operation to the dispatcher.
func (e *Engine) Publish(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	return e.Events.Publish(ctx, events...)
}

// Close stops dispatch and releases the database and cache connections.
func (e *Engine) Close() error {
	e.Events.Stop()

	var firstErr error
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			firstErr = err
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
