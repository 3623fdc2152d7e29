package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/XhsCrawler/internal/api"
	"github.com/RecoveryAshes/XhsCrawler/internal/core"
	"github.com/RecoveryAshes/XhsCrawler/internal/utils"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动HTTP API服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			if err := ValidateAddr(serveAddr); err != nil {
				return err
			}
			appConfig.Server.Addr = serveAddr
		}

		ctx := cmd.Context()
		app, err := startApp(ctx, true)
		if err != nil {
			return err
		}
		defer closeApp(app)

		server := api.NewServer(app.Orchestrator, app.Store, app.Pool, app.Resources)
		httpServer := &http.Server{
			Addr:         appConfig.Server.Addr,
			Handler:      server.Router(),
			ReadTimeout:  appConfig.Server.ReadTimeout,
			WriteTimeout: appConfig.Server.WriteTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			utils.Infof("🚀 HTTP服务监听 %s", appConfig.Server.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("HTTP服务异常退出: %w", err)
			}
			return nil
		case <-ctx.Done():
			utils.Warn("收到中断信号, 正在优雅关闭...")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("关闭HTTP服务失败: %w", err)
		}
		utils.Info("HTTP服务已关闭")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "监听地址 (默认使用配置 server.addr)")
}

// startApp 装配组件并预启动浏览器池
func startApp(ctx context.Context, withHealth bool) (*core.App, error) {
	app, err := core.NewApp(ctx, appConfig, headers, nil)
	if err != nil {
		return nil, fmt.Errorf("初始化失败: %w", err)
	}
	if err := app.Start(ctx, withHealth); err != nil {
		closeApp(app)
		return nil, fmt.Errorf("启动浏览器池失败: %w", err)
	}
	utils.Infof("浏览器池已就绪 (min=%d, max=%d, 驱动=%s)",
		appConfig.Pool.MinSize, appConfig.Pool.MaxSize, appConfig.Browser.Driver)
	return app, nil
}

func closeApp(app *core.App) {
	if err := app.Close(); err != nil {
		utils.Errorf("释放资源失败: %v", err)
	}
}
