// Package cmd 实现 melisync 的命令行入口
package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"meli_sync_v1_202601/internal/controller"
	"meli_sync_v1_202601/internal/model"
	"meli_sync_v1_202601/internal/repository"
	"meli_sync_v1_202601/internal/service"
	"meli_sync_v1_202601/internal/task"
	"meli_sync_v1_202601/pkg/config"
	"meli_sync_v1_202601/pkg/database"
	"meli_sync_v1_202601/pkg/meli"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "melisync",
		Short: "目录商品到市场刊登的生命周期引擎",
		Long: "melisync 把内部商品目录同步到 MercadoLibre：\n" +
			"批量发布合格商品、差分同步价格与库存、暂停无货刊登、关闭超期刊登。",
	}
)

// Execute 运行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "配置文件路径 (默认 ./config.yaml)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(publishCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(pauseCmd())
	rootCmd.AddCommand(closeCmd())
	rootCmd.AddCommand(authCmd())
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	Config      *config.Config
	DB          *gorm.DB
	Client      *meli.Client
	Repos       *Repositories
	Services    *Services
	TaskManager *task.TaskManager
	Controllers *Controllers
}

// Repositories 仓库集合
type Repositories struct {
	Token   repository.TokenRepository
	Listing repository.ListingRepository
	Product repository.ProductRepository
}

// Services 服务集合
type Services struct {
	Auth        *service.AuthService
	Pricing     *service.PricingService
	Stock       *service.StockService
	Eligibility *service.EligibilityService
	Catalog     *service.CatalogService
	Publish     *service.PublishService
	Sync        *service.SyncService
	Lifecycle   *service.LifecycleService
	Batch       *service.BatchService
}

// Controllers 控制器集合
type Controllers struct {
	Auth  *controller.AuthController
	Batch *controller.BatchController
}

// buildDependencies 装配全部依赖
func buildDependencies() *Dependencies {
	// 1. 配置
	cfg, err := config.Load(cfgFile)
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	// 2. 数据库
	db := database.InitDB(cfg.Database.DSN,
		&model.MeliToken{},
		&model.Product{},
		&model.Listing{},
	)

	// 3. 市场客户端
	client := meli.NewClient(&meli.ClientConfig{
		BaseURL:      cfg.Meli.BaseURL,
		ClientID:     cfg.Meli.ClientID,
		ClientSecret: cfg.Meli.ClientSecret,
		RetryCount:   cfg.Meli.RetryCount,
		RetryWait:    cfg.Meli.RetryWait,
		RetryMaxWait: cfg.Meli.RetryMaxWait,
		Timeout:      cfg.Meli.Timeout,
		Debug:        cfg.Meli.Debug,
	})

	// 4. Repo 层
	repos := &Repositories{
		Token:   repository.NewTokenRepository(db),
		Listing: repository.NewListingRepository(db),
		Product: repository.NewProductRepository(db),
	}

	// 5. 服务层
	services := &Services{
		Pricing:     service.NewPricingService(&cfg.Pricing),
		Stock:       service.NewStockService(),
		Eligibility: service.NewEligibilityService(&cfg.Publication),
	}
	services.Auth = service.NewAuthService(repos.Token, client, cfg.Meli.Environment)
	services.Catalog = service.NewCatalogService(client, services.Auth, cfg.Meli.AccountID, cfg.Meli.SiteID)
	services.Publish = service.NewPublishService(
		repos.Listing, services.Auth, client,
		services.Pricing, services.Stock,
		services.Catalog, nil,
		cfg.Meli.AccountID, cfg.Meli.CurrencyID,
	)
	services.Sync = service.NewSyncService(
		repos.Listing, repos.Product, services.Auth, client,
		services.Pricing, services.Stock, cfg.Meli.AccountID,
	)
	services.Lifecycle = service.NewLifecycleService(repos.Listing, services.Auth, client, cfg.Meli.AccountID)
	services.Batch = service.NewBatchService(
		repos.Listing, repos.Product,
		services.Eligibility, services.Publish, services.Sync, services.Lifecycle,
		&cfg.Batch,
	)

	// 6. 任务与控制器
	taskManager := task.NewTaskManager(services.Batch, &cfg.Tasks)
	controllers := &Controllers{
		Auth:  controller.NewAuthController(services.Auth),
		Batch: controller.NewBatchController(taskManager, services.Batch),
	}

	return &Dependencies{
		Config:      cfg,
		DB:          db,
		Client:      client,
		Repos:       repos,
		Services:    services,
		TaskManager: taskManager,
		Controllers: controllers,
	}
}
