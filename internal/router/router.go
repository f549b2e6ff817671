package router

import (
	"github.com/gin-gonic/gin"

	"meli_sync_v1_202601/internal/controller"
)

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine,
	authCtl *controller.AuthController,
	batchCtl *controller.BatchController) {
	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		// auth 授权组
		auth := api.Group("/auth")
		{
			// POST /api/v1/auth/exchange
			auth.POST("/exchange", authCtl.Exchange)
		}

		// batches 批次触发组
		batches := api.Group("/batches")
		{
			batches.POST("/publish", batchCtl.RunPublish)
			batches.POST("/sync", batchCtl.RunSync)
			batches.POST("/pause", batchCtl.RunPause)
			batches.POST("/close", batchCtl.RunClose)
		}

		// listings 定向操作组
		listings := api.Group("/listings")
		{
			listings.POST("/:id/publish", batchCtl.PublishListing)
			listings.POST("/:id/sync", batchCtl.SyncListing)
			listings.POST("/:id/pause", batchCtl.PauseListing)
			listings.POST("/:id/close", batchCtl.CloseListing)
		}

		// products 按目录编码入口
		products := api.Group("/products")
		{
			products.POST("/:code/publish", batchCtl.PublishByCode)
		}
	}
}
