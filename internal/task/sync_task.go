package task

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"meli_sync_v1_202601/internal/service"
)

// SyncTask 同步定时任务
// 每 30 分钟对所有 ACTIVE 刊登做一次差分对账
type SyncTask struct {
	batch *service.BatchService
	Cron  *cron.Cron

	spec    string
	timeout time.Duration
}

// NewSyncTask 创建同步任务
func NewSyncTask(batch *service.BatchService, spec string) *SyncTask {
	if spec == "" {
		spec = "0 0/30 * * * *"
	}
	return &SyncTask{
		batch:   batch,
		Cron:    cron.New(cron.WithSeconds()),
		spec:    spec,
		timeout: 20 * time.Minute,
	}
}

// Start 启动定时任务
func (t *SyncTask) Start() {
	_, err := t.Cron.AddFunc(t.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		t.run(ctx, false)
	})
	if err != nil {
		log.Fatalf("无法启动同步定时任务: %v", err)
	}

	t.Cron.Start()
	log.Printf("[Task] 同步任务已启动 (spec=%s)", t.spec)
}

// Stop 停止定时任务
func (t *SyncTask) Stop() {
	t.Cron.Stop()
}

// Run 手动触发一轮同步
func (t *SyncTask) Run(ctx context.Context, force bool) {
	t.run(ctx, force)
}

func (t *SyncTask) run(ctx context.Context, force bool) {
	result, err := t.batch.RunSyncBatch(ctx, service.SyncOptions{Force: force})
	if err != nil {
		log.Printf("[Cron] 同步批次异常终止: %v", err)
		return
	}
	log.Printf("[Cron] 同步批次完成 updated=%d no_change=%d errors=%d",
		result.Updated, result.NoChange, result.Errors)
}
