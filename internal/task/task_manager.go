package task

import (
	"context"
	"log"

	"meli_sync_v1_202601/internal/service"
	"meli_sync_v1_202601/pkg/config"
)

// ==================== TaskManager 刊登定时任务管理器 ====================

// TaskManager 统一管理刊登生命周期定时任务
// 管理范围：发布、同步、维护 (暂停/关闭)
// Token 刷新不在这里：凭证在每次 API 调用前按需惰性刷新
type TaskManager struct {
	publishTask  *PublishTask
	syncTask     *SyncTask
	maintainTask *MaintainTask

	enabled bool
	batch   *service.BatchService
}

// NewTaskManager 创建任务管理器
func NewTaskManager(batch *service.BatchService, cfg *config.TasksConfig) *TaskManager {
	return &TaskManager{
		publishTask:  NewPublishTask(batch, cfg.PublishSpec, cfg.Sandbox),
		syncTask:     NewSyncTask(batch, cfg.SyncSpec),
		maintainTask: NewMaintainTask(batch, cfg.PauseSpec, cfg.CloseSpec),
		enabled:      cfg.Enabled,
		batch:        batch,
	}
}

// Start 启动全部定时任务
func (m *TaskManager) Start() {
	if !m.enabled {
		log.Println("[Task] 定时任务已禁用，仅支持手动触发")
		return
	}
	m.publishTask.Start()
	m.syncTask.Start()
	m.maintainTask.Start()
	log.Println("[Task] 全部定时任务已启动")
}

// Stop 停止全部定时任务
func (m *TaskManager) Stop() {
	if !m.enabled {
		return
	}
	m.publishTask.Stop()
	m.syncTask.Stop()
	m.maintainTask.Stop()
	log.Println("[Task] 全部定时任务已停止")
}

// ==================== 手动触发 ====================

// TriggerPublish 手动触发一轮发布批次
func (m *TaskManager) TriggerPublish(ctx context.Context, opts service.PublishOptions) (*service.PublishBatchResult, error) {
	return m.batch.RunPublishBatch(ctx, opts)
}

// TriggerSync 手动触发一轮同步批次
func (m *TaskManager) TriggerSync(ctx context.Context, opts service.SyncOptions) (*service.SyncBatchResult, error) {
	return m.batch.RunSyncBatch(ctx, opts)
}

// TriggerPause 手动触发无货暂停批次
func (m *TaskManager) TriggerPause(ctx context.Context, dryRun bool) (*service.MaintenanceResult, error) {
	return m.batch.RunPauseBatch(ctx, dryRun)
}

// TriggerClose 手动触发超期关闭批次
func (m *TaskManager) TriggerClose(ctx context.Context, hours int, dryRun bool) (*service.MaintenanceResult, error) {
	return m.batch.RunCloseBatch(ctx, hours, dryRun)
}
