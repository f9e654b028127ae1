package tasks

import "encoding/json"

// 定义任务类型常量
const (
	// TypeRoomMaintenance 周期性房间维护清扫任务
	TypeRoomMaintenance = "room:maintenance"
)

// RoomMaintenancePayload 维护任务目前不需要携带数据，留空便于将来扩展。
type RoomMaintenancePayload struct{}

// NewRoomMaintenanceTask 创建维护任务的 payload 字节
func NewRoomMaintenanceTask() ([]byte, error) {
	return json.Marshal(RoomMaintenancePayload{})
}
