package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"xiaozhengshu/app"
	"xiaozhengshu/base"
	"xiaozhengshu/pkg/core/start"
	"xiaozhengshu/pkg/core/util"
	"xiaozhengshu/pkg/db"
	"xiaozhengshu/pkg/scheduler"
	"xiaozhengshu/router"
)

func main() {
	env, filename := getBaseInfo()

	file, err := os.ReadFile(filename)
	if err != nil {
		panic(fmt.Sprintf("读取配置文件失败,因为：%v", err))
	}

	configures := start.NewConfigures(file, env)
	base.Configures = configures
	base.Logger = configures.Logger
	base.ENV = env
	base.AdminAuth = base.Configures.AdminAuth
	util.OpsWebhook = configures.Config.ConfigCenter.OpsWebhook

	base.DB = configures.EnableMysql()

	// 执行数据库迁移
	if err := db.AutoMigrate(base.DB); err != nil {
		configures.Logger.Panic(fmt.Sprintf("数据库迁移失败: %v", err))
	}

	base.RDB = configures.EnableRedis()
	base.Cache = configures.EnableCache(base.RDB)
	base.Locker = configures.EnableLocker(base.RDB)

	base.Scheduler = scheduler.NewScheduler(base.Locker, scheduler.DefaultSchedulerConfig())
	if err := base.Scheduler.Start(); err != nil {
		configures.Logger.Panic(fmt.Sprintf("启动调度器失败: %v", err))
	}

	if env == "dev" {
		// 开发环境下添加数据库保活任务，防止代理超时导致连接断开
		keepAliveTask := scheduler.NewIntervalTask(
			"数据库连接保活",
			time.Now(),
			10*time.Second,
			scheduler.TaskExecuteModeLocal,
			5*time.Second,
			func(ctx context.Context) error {
				sqlDB, err := base.DB.DB()
				if err != nil {
					base.Logger.WithErr(err).Error("获取数据库连接失败")
					return err
				}
				if err := sqlDB.Ping(); err != nil {
					base.Logger.WithErr(err).Error("数据库Ping失败")
					return err
				}
				return nil
			},
		)
		if err := base.Scheduler.AddTask(keepAliveTask); err != nil {
			configures.Logger.Panic(fmt.Sprintf("添加数据库保活任务失败: %v", err))
		}
	}

	// 创建应用组合根
	appRoot := app.NewApp()

	// 初始化默认超级管理员（当 user_admin 表为空时自动创建 admin/admin）
	if err := appRoot.UserModule.EnsureBootstrapSuperAdmin(context.Background()); err != nil {
		configures.Logger.Panic(fmt.Sprintf("初始化默认超级管理员失败: %v", err))
	}

	// 注册证书自动续期巡检任务（默认每天凌晨 2:30 执行，可在配置中覆盖）
	renewTask, err := scheduler.NewCronTask(
		"证书自动续期巡检",
		appRoot.RenewalModule.CronExpr(),
		scheduler.TaskExecuteModeDistributed,
		30*time.Minute,
		func(ctx context.Context) error {
			base.Logger.Info("开始执行证书自动续期巡检")
			if err := appRoot.RenewalModule.RenewDueConnections(ctx); err != nil {
				base.Logger.WithErr(err).Error("证书自动续期巡检执行失败")
				return err
			}
			base.Logger.Info("证书自动续期巡检执行完成")
			return nil
		},
	)
	if err != nil {
		configures.Logger.Panic(fmt.Sprintf("创建证书自动续期巡检任务失败: %v", err))
	}
	if err := base.Scheduler.AddTask(renewTask); err != nil {
		configures.Logger.Panic(fmt.Sprintf("添加证书自动续期巡检任务失败: %v", err))
	}

	// 创建 Fiber 应用
	fiberApp := app.GetApp()

	// 注册路由
	router.Register(appRoot, fiberApp)

	log.Fatal(fiberApp.Listen(fmt.Sprintf(":%d", base.Configures.Config.Port)))
}

func getBaseInfo() (string, string) {
	// 定义命令行参数
	env := flag.String("env", "dev", "环境配置 (dev, prod, test等)")
	configFile := flag.String("config", "", "配置文件路径，默认为 ./resources/{env}.yaml")

	// 解析命令行参数
	flag.Parse()

	// 如果没有指定配置文件路径，则使用默认路径
	var filename string
	if *configFile == "" {
		getwd, err := os.Getwd()
		if err != nil {
			panic(fmt.Sprintf("获取当前文件位置失败,因为：%v", err))
		}
		filename = getwd + "/resources/" + *env + ".yaml"
	} else {
		filename = *configFile
	}
	return *env, filename
}
