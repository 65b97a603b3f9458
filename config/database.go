package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/robotlab/labhub/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var db *gorm.DB

// InitDatabase establishes a connection to MySQL (or PostgreSQL when DBDriver says so)
// and migrates the given models.
func InitDatabase(modelDefs ...interface{}) *gorm.DB {
	if db != nil {
		return db
	}

	cfg := Get()

	// Configure GORM logger: derive level from app LogLevel and raise slow-sql threshold to reduce noise
	gLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  toGormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gormCfg := &gorm.Config{
		Logger:                                   gLogger,
		DisableForeignKeyConstraintWhenMigrating: true,
		// unique index violations surface as gorm.ErrDuplicatedKey
		TranslateError: true,
	}

	var err error
	db, err = gorm.Open(dialector(cfg), gormCfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get sql.DB: %v", err)
	}

	// 连接池参数：适中规模 + 更积极的连接回收
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	// 启动期做一次 Ping，提前暴露网络/认证问题
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("database ping failed: %v", err)
	}

	if err := Migrate(db, modelDefs...); err != nil {
		log.Fatalf("auto migration failed: %v", err)
	}

	if err := SeedAdmin(db, cfg); err != nil {
		log.Printf("failed to seed admin account: %v", err)
	}
	if err := SeedRules(db); err != nil {
		log.Printf("failed to seed default rules: %v", err)
	}

	return db
}

func dialector(cfg AppConfig) gorm.Dialector {
	switch cfg.DBDriver {
	case "postgres", "postgresql":
		dsn := cfg.DatabaseURI
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=%s",
				cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.Location().String())
		}
		return postgres.Open(dsn)
	default:
		dsn := cfg.DatabaseURI
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
				cfg.DBUser,
				cfg.DBPassword,
				cfg.DBHost,
				cfg.DBPort,
				cfg.DBName,
			)
		}
		return mysql.Open(dsn)
	}
}

// Migrate creates or extends the tables for the given models. With no arguments it
// migrates every model the service owns.
func Migrate(conn *gorm.DB, modelDefs ...interface{}) error {
	if len(modelDefs) == 0 {
		modelDefs = models.All()
	}
	for _, model := range modelDefs {
		if err := conn.AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %T: %w", model, err)
		}
	}
	return nil
}

// SeedAdmin creates the configured administrator when no admin account exists yet.
// Without AdminPassword nothing is created.
func SeedAdmin(conn *gorm.DB, cfg AppConfig) error {
	if cfg.AdminPassword == "" {
		return nil
	}
	var existing models.User
	err := conn.Where("is_admin = ?", true).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := models.User{
		Username:     cfg.AdminUsername,
		Name:         cfg.AdminUsername,
		Email:        cfg.AdminEmail,
		PasswordHash: string(hash),
		IsAdmin:      true,
	}
	if err := conn.Create(&admin).Error; err != nil {
		return err
	}
	log.Printf("seeded admin account %q", admin.Username)
	return nil
}

var defaultRules = []models.Rule{
	{Name: "完成实验报告", Points: 10, Description: "按时提交实验报告"},
	{Name: "参加组会", Points: 5, Description: "参加每周组会"},
	{Name: "发表论文", Points: 100, Description: "在会议或期刊发表论文"},
	{Name: "协助实验室建设", Points: 15, Description: "参与实验室设备维护和建设"},
	{Name: "迟到", Points: -5, Description: "组会或活动迟到"},
	{Name: "未完成任务", Points: -10, Description: "未按时完成分配的任务"},
}

// SeedRules fills an empty rules table with the stock catalogue.
func SeedRules(conn *gorm.DB) error {
	var n int64
	if err := conn.Model(&models.Rule{}).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	rules := make([]models.Rule, len(defaultRules))
	copy(rules, defaultRules)
	return conn.Create(&rules).Error
}

// toGormLogLevel maps application LogLevel to GORM's logger level.
func toGormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		// GORM 'Info' shows SQL; use with caution
		return logger.Info
	case "info", "":
		// Suppress per-statement logs; keep warnings (including slow SQL)
		return logger.Warn
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}

// DB provides access to initialized gorm DB instance.
func DB() *gorm.DB {
	if db == nil {
		log.Fatal("database not initialized, call InitDatabase first")
	}
	return db
}
