package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/elahist/paint-together/internal/service"
)

// MaintenanceHandler 处理周期性的房间维护清扫任务
type MaintenanceHandler struct {
	maintenance *service.MaintenanceService
}

// NewMaintenanceHandler 创建 Handler 实例
func NewMaintenanceHandler(maintenance *service.MaintenanceService) *MaintenanceHandler {
	if maintenance == nil {
		panic("MaintenanceService cannot be nil for MaintenanceHandler")
	}
	return &MaintenanceHandler{maintenance: maintenance}
}

// ProcessTask 实现 asynq.Handler 接口。
// Sweep 自带重入保护：上一轮还没跑完时本轮直接空转，不算失败。
// 单个房间的存储错误在 Sweep 内部记录并继续，所以任务本身总是成功，
// 避免 asynq 因个别房间的问题重试整个清扫。
func (h *MaintenanceHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())
	logCtx.Debug("Processing periodic room maintenance task...")

	h.maintenance.Sweep(ctx)

	logCtx.Debug("Periodic room maintenance task completed")
	return nil
}
