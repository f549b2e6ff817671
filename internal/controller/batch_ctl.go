package controller

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"meli_sync_v1_202601/internal/service"
	"meli_sync_v1_202601/internal/task"
)

// BatchController 批次触发控制器
// 全部端点同步执行批次并返回统计，dry_run/force 等开关走 query 参数
type BatchController struct {
	taskManager *task.TaskManager
	batch       *service.BatchService
}

// NewBatchController 创建批次控制器
func NewBatchController(taskManager *task.TaskManager, batch *service.BatchService) *BatchController {
	return &BatchController{taskManager: taskManager, batch: batch}
}

func boolQuery(ctx *gin.Context, key string) bool {
	return ctx.Query(key) == "true"
}

// ==================== 批次端点 ====================

// RunPublish 触发发布批次
// POST /api/v1/batches/publish?dry_run=true&sandbox=true
func (c *BatchController) RunPublish(ctx *gin.Context) {
	opts := service.PublishOptions{
		DryRun:  boolQuery(ctx, "dry_run"),
		Sandbox: boolQuery(ctx, "sandbox"),
	}

	result, err := c.taskManager.TriggerPublish(ctx.Request.Context(), opts)
	if err != nil {
		ctx.JSON(500, gin.H{"code": 500, "message": err.Error(), "data": result})
		return
	}
	ctx.JSON(200, gin.H{"code": 200, "message": "发布批次完成", "data": result})
}

// RunSync 触发同步批次
// POST /api/v1/batches/sync?dry_run=true&force=true
func (c *BatchController) RunSync(ctx *gin.Context) {
	opts := service.SyncOptions{
		DryRun: boolQuery(ctx, "dry_run"),
		Force:  boolQuery(ctx, "force"),
	}

	result, err := c.taskManager.TriggerSync(ctx.Request.Context(), opts)
	if err != nil {
		ctx.JSON(500, gin.H{"code": 500, "message": err.Error(), "data": result})
		return
	}
	ctx.JSON(200, gin.H{"code": 200, "message": "同步批次完成", "data": result})
}

// RunPause 触发无货暂停批次
// POST /api/v1/batches/pause?dry_run=true
func (c *BatchController) RunPause(ctx *gin.Context) {
	result, err := c.taskManager.TriggerPause(ctx.Request.Context(), boolQuery(ctx, "dry_run"))
	if err != nil {
		ctx.JSON(500, gin.H{"code": 500, "message": err.Error(), "data": result})
		return
	}
	ctx.JSON(200, gin.H{"code": 200, "message": "暂停批次完成", "data": result})
}

// RunClose 触发超期关闭批次
// POST /api/v1/batches/close?hours=72&dry_run=true
func (c *BatchController) RunClose(ctx *gin.Context) {
	hours, _ := strconv.Atoi(ctx.Query("hours"))

	result, err := c.taskManager.TriggerClose(ctx.Request.Context(), hours, boolQuery(ctx, "dry_run"))
	if err != nil {
		ctx.JSON(500, gin.H{"code": 500, "message": err.Error(), "data": result})
		return
	}
	ctx.JSON(200, gin.H{"code": 200, "message": "关闭批次完成", "data": result})
}

// ==================== 定向端点 ====================

func parseListingID(ctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		ctx.JSON(400, gin.H{"code": 400, "message": "非法的刊登 id"})
		return 0, false
	}
	return id, true
}

// PublishListing 定向发布单条刊登
// POST /api/v1/listings/:id/publish?dry_run=true&sandbox=true
func (c *BatchController) PublishListing(ctx *gin.Context) {
	id, ok := parseListingID(ctx)
	if !ok {
		return
	}
	opts := service.PublishOptions{
		DryRun:  boolQuery(ctx, "dry_run"),
		Sandbox: boolQuery(ctx, "sandbox"),
	}

	result, err := c.batch.PublishListing(ctx.Request.Context(), id, opts)
	if err != nil {
		ctx.JSON(500, gin.H{"code": 500, "message": err.Error()})
		return
	}
	ctx.JSON(200, gin.H{"code": 200, "message": "发布完成", "data": result})
}

// PublishByCode 按目录编码定向发布
// POST /api/v1/products/:code/publish?dry_run=true&sandbox=true
func (c *BatchController) PublishByCode(ctx *gin.Context) {
	code := ctx.Param("code")
	if code == "" {
		ctx.JSON(400, gin.H{"code": 400, "message": "缺少商品编码"})
		return
	}
	opts := service.PublishOptions{
		DryRun:  boolQuery(ctx, "dry_run"),
		Sandbox: boolQuery(ctx, "sandbox"),
	}

	result, err := c.batch.PublishByCode(ctx.Request.Context(), code, opts)
	if err != nil {
		ctx.JSON(500, gin.H{"code": 500, "message": err.Error()})
		return
	}
	ctx.JSON(200, gin.H{"code": 200, "message": "发布完成", "data": result})
}

// SyncListing 定向同步单条刊登
// POST /api/v1/listings/:id/sync?dry_run=true&force=true
func (c *BatchController) SyncListing(ctx *gin.Context) {
	id, ok := parseListingID(ctx)
	if !ok {
		return
	}
	opts := service.SyncOptions{
		DryRun: boolQuery(ctx, "dry_run"),
		Force:  boolQuery(ctx, "force"),
	}

	changed, err := c.batch.SyncListing(ctx.Request.Context(), id, opts)
	if err != nil {
		ctx.JSON(500, gin.H{"code": 500, "message": err.Error()})
		return
	}
	ctx.JSON(200, gin.H{"code": 200, "message": "同步完成", "data": gin.H{"updated": changed}})
}

// PauseListing 定向暂停单条刊登
// POST /api/v1/listings/:id/pause?dry_run=true
func (c *BatchController) PauseListing(ctx *gin.Context) {
	id, ok := parseListingID(ctx)
	if !ok {
		return
	}
	if err := c.batch.PauseListing(ctx.Request.Context(), id, boolQuery(ctx, "dry_run")); err != nil {
		ctx.JSON(500, gin.H{"code": 500, "message": err.Error()})
		return
	}
	ctx.JSON(200, gin.H{"code": 200, "message": "刊登已暂停"})
}

// CloseListing 定向关闭单条刊登
// POST /api/v1/listings/:id/close?dry_run=true
func (c *BatchController) CloseListing(ctx *gin.Context) {
	id, ok := parseListingID(ctx)
	if !ok {
		return
	}
	if err := c.batch.CloseListing(ctx.Request.Context(), id, boolQuery(ctx, "dry_run")); err != nil {
		ctx.JSON(500, gin.H{"code": 500, "message": err.Error()})
		return
	}
	ctx.JSON(200, gin.H{"code": 200, "message": "刊登已关闭"})
}
