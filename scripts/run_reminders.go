// 手动触发一轮面试提醒扫描
//
// 提醒扫描已集成到主应用的定时任务中（默认每小时整点执行）。
// 此脚本用于手动补扫，例如服务长时间停机恢复后。
// 幂等记录保证重复执行不会重发已送达的提醒。
//
// 用法: go run scripts/run_reminders.go

package main

import (
	"codequest_backend/internal/config"
	"codequest_backend/internal/repository"
	"codequest_backend/internal/service"
	"codequest_backend/pkg/database"
	"codequest_backend/pkg/logger"
	"context"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

func main() {
	data, err := os.ReadFile("configs/config.yaml")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	config.ApplyReminderDefaults(&cfg.Reminder)
	logger.InitLogger(&cfg)

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	mail := service.NewMailService(&cfg.Mail)
	reminder := service.NewReminderService(
		repository.NewBookingRepository(db),
		repository.NewReminderRepository(db),
		mail,
		nil,
		cfg.Reminder,
		cfg.Server.FrontendURL,
	)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Reminder.LeaseTTL)
	defer cancel()
	if err := reminder.RunTick(ctx); err != nil {
		log.Fatalf("提醒扫描失败: %v", err)
	}
	log.Println("提醒扫描完成")
}
