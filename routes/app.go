package routes

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/robotlab/labhub/config"
	"github.com/robotlab/labhub/repository"
	"github.com/robotlab/labhub/services"
	"github.com/robotlab/labhub/utils"
)

// App is the wired object graph shared by the HTTP server and the job commands.
type App struct {
	Store        *repository.GormStore
	Settings     services.Settings
	Now          func() time.Time
	Cache        *utils.Cache
	Revocations  *utils.Revocations
	Materializer *services.Materializer
	Dispatcher   *services.Dispatcher
	Penalties    *services.PenaltyEngine
	CheckIns     *services.CheckInService
	Points       *services.PointService
	Members      *services.MemberService
	Scheduler    *services.Scheduler
}

// NewApp builds every service over db. rc and notifier may be nil; a nil notifier is
// chosen from cfg.
func NewApp(cfg config.AppConfig, db *gorm.DB, rc *redis.Client, notifier services.Notifier, logger *zap.Logger, opts ...services.Option) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = services.NewNotifier(cfg, logger.Named("notify"))
	}
	store := repository.NewGormStore(db)
	settings := services.SettingsFromConfig(cfg)
	cache := utils.NewCache(rc)

	dispatcher := services.NewDispatcher(store, notifier, settings, logger.Named("dispatcher"), opts...)
	materializer := services.NewMaterializer(store, dispatcher, settings, logger.Named("materializer"), opts...)
	penalties := services.NewPenaltyEngine(store, cache, settings, logger.Named("penalty"), opts...)
	scheduler := services.NewScheduler(services.SchedulerConfig{
		Location:        settings.Location,
		MaterializeSpec: cfg.MaterializeCron,
		TickSpec:        cfg.TickCron,
		JobTimeout:      cfg.JobTimeout(),
	}, materializer, dispatcher, penalties, utils.NewLease(rc), logger.Named("scheduler"))

	return &App{
		Store:        store,
		Settings:     settings,
		Now:          services.Clock(opts...),
		Cache:        cache,
		Revocations:  utils.NewRevocations(rc),
		Materializer: materializer,
		Dispatcher:   dispatcher,
		Penalties:    penalties,
		CheckIns:     services.NewCheckInService(store, logger.Named("checkin"), opts...),
		Points:       services.NewPointService(store, cache, notifier, logger.Named("points"), opts...),
		Members:      services.NewMemberService(store, cache, logger.Named("members"), opts...),
		Scheduler:    scheduler,
	}
}
