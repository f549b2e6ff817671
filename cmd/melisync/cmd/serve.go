package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"meli_sync_v1_202601/internal/router"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务与定时任务",
		Run: func(cmd *cobra.Command, args []string) {
			deps := buildDependencies()

			// 1. 定时任务
			deps.TaskManager.Start()
			defer deps.TaskManager.Stop()

			// 2. 路由
			r := gin.Default()
			router.InitRoutes(r, deps.Controllers.Auth, deps.Controllers.Batch)

			// 3. 启动服务
			startServer(r, deps.Config.Server.Addr)
		},
	}
}

// startServer 异步启动服务并等待退出信号优雅关闭
func startServer(r *gin.Engine, addr string) {
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Printf("服务启动在 %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务强制关闭: %v", err)
	}

	log.Println("服务已退出")
}
