package base

import (
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/pkg/core/security"
	"xiaozhengshu/pkg/core/start"
	"xiaozhengshu/pkg/scheduler"

	"github.com/bsm/redislock"
	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	Configures *start.Configures
	Logger     *logger.Log
	ENV        string
	AdminAuth  *security.AdminAuth
	DB         *gorm.DB
	RDB        *redis.Client
	Cache      *cache.Cache
	Locker     *redislock.Client
	Scheduler  *scheduler.Scheduler
)
