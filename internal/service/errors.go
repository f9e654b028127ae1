package service

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidColor       = errors.New("invalid color")
	ErrOutOfBounds        = errors.New("pixel out of bounds")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInternalServer     = errors.New("internal server error")
)

// ErrorKind 把业务错误映射为发给客户端的 error 事件 kind 字段。
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "RoomNotFound"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrInvalidColor):
		return "InvalidColor"
	case errors.Is(err, ErrOutOfBounds):
		return "OutOfBounds"
	case errors.Is(err, ErrStorageUnavailable):
		return "StorageUnavailable"
	default:
		return "Internal"
	}
}
