package task

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"meli_sync_v1_202601/internal/service"
)

// MaintainTask 刊登维护定时任务
// 无货暂停每小时跑一次，超期关闭每天凌晨跑一次
type MaintainTask struct {
	batch *service.BatchService
	Cron  *cron.Cron

	pauseSpec string
	closeSpec string
	timeout   time.Duration
}

// NewMaintainTask 创建维护任务
func NewMaintainTask(batch *service.BatchService, pauseSpec, closeSpec string) *MaintainTask {
	if pauseSpec == "" {
		pauseSpec = "0 15 * * * *" // 错开发布任务的整点
	}
	if closeSpec == "" {
		closeSpec = "0 0 3 * * *"
	}
	return &MaintainTask{
		batch:     batch,
		Cron:      cron.New(cron.WithSeconds()),
		pauseSpec: pauseSpec,
		closeSpec: closeSpec,
		timeout:   20 * time.Minute,
	}
}

// Start 启动定时任务
func (t *MaintainTask) Start() {
	_, err := t.Cron.AddFunc(t.pauseSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		t.runPause(ctx)
	})
	if err != nil {
		log.Fatalf("无法启动暂停定时任务: %v", err)
	}

	_, err = t.Cron.AddFunc(t.closeSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		t.runClose(ctx, 0)
	})
	if err != nil {
		log.Fatalf("无法启动关闭定时任务: %v", err)
	}

	t.Cron.Start()
	log.Printf("[Task] 维护任务已启动 (pause=%s close=%s)", t.pauseSpec, t.closeSpec)
}

// Stop 停止定时任务
func (t *MaintainTask) Stop() {
	t.Cron.Stop()
}

// RunPause 手动触发无货暂停
func (t *MaintainTask) RunPause(ctx context.Context) {
	t.runPause(ctx)
}

// RunClose 手动触发超期关闭 (hours<=0 用配置默认值)
func (t *MaintainTask) RunClose(ctx context.Context, hours int) {
	t.runClose(ctx, hours)
}

func (t *MaintainTask) runPause(ctx context.Context) {
	result, err := t.batch.RunPauseBatch(ctx, false)
	if err != nil {
		log.Printf("[Cron] 暂停批次异常终止: %v", err)
		return
	}
	log.Printf("[Cron] 暂停批次完成 success=%d errors=%d", result.Success, result.Errors)
}

func (t *MaintainTask) runClose(ctx context.Context, hours int) {
	result, err := t.batch.RunCloseBatch(ctx, hours, false)
	if err != nil {
		log.Printf("[Cron] 关闭批次异常终止: %v", err)
		return
	}
	log.Printf("[Cron] 关闭批次完成 success=%d errors=%d", result.Success, result.Errors)
}
