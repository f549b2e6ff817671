package task

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"meli_sync_v1_202601/internal/service"
)

// PublishTask 发布定时任务
// 每小时把合格商品批量推上市场
type PublishTask struct {
	batch *service.BatchService
	Cron  *cron.Cron

	spec    string
	timeout time.Duration
	sandbox bool
}

// NewPublishTask 创建发布任务
func NewPublishTask(batch *service.BatchService, spec string, sandbox bool) *PublishTask {
	if spec == "" {
		spec = "0 0 * * * *" // 整点
	}
	return &PublishTask{
		batch:   batch,
		Cron:    cron.New(cron.WithSeconds()),
		spec:    spec,
		timeout: 30 * time.Minute,
		sandbox: sandbox,
	}
}

// Start 启动定时任务
func (t *PublishTask) Start() {
	_, err := t.Cron.AddFunc(t.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		t.run(ctx)
	})
	if err != nil {
		log.Fatalf("无法启动发布定时任务: %v", err)
	}

	t.Cron.Start()
	log.Printf("[Task] 发布任务已启动 (spec=%s sandbox=%v)", t.spec, t.sandbox)
}

// Stop 停止定时任务
func (t *PublishTask) Stop() {
	t.Cron.Stop()
}

// Run 手动触发一轮发布
func (t *PublishTask) Run(ctx context.Context) {
	t.run(ctx)
}

func (t *PublishTask) run(ctx context.Context) {
	result, err := t.batch.RunPublishBatch(ctx, service.PublishOptions{Sandbox: t.sandbox})
	if err != nil {
		log.Printf("[Cron] 发布批次异常终止: %v", err)
		return
	}
	log.Printf("[Cron] 发布批次完成 success=%d errors=%d skipped=%d",
		result.Success, result.Errors, result.Skipped)
}
