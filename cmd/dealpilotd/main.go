package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"DealPilot/internal/app"
	"DealPilot/internal/config"
	"DealPilot/pkg/logger"
)

// main 是 DealPilot 守护进程的入口。
func main() {
	configPath := flag.String("config", os.Getenv("DEALPILOT_CONFIG"), "配置文件路径（.yaml/.json），为空时只使用默认值与环境变量")
	envFile := flag.String("env-file", ".env", "启动前加载的 dotenv 文件")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *envFile); err != nil {
		log.Fatalf("dealpilotd 运行失败: %v", err)
	}
}

func run(ctx context.Context, configPath, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := app.InitLogger(cfg.Logging); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	daemon, err := app.NewDaemon(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := daemon.Close(); err != nil {
			log.Printf("释放资源失败: %v", err)
		}
	}()
	return daemon.Run(ctx)
}
