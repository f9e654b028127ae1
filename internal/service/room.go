package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/elahist/paint-together/internal/domain"
	"github.com/elahist/paint-together/internal/repository"
)

// 画布尺寸暂不开放给用户配置
const (
	defaultCanvasWidth  = 550
	defaultCanvasHeight = 550
)

// RoomService 负责房间的创建。
type RoomService struct {
	roomRepo   repository.RoomRepository
	gridWidth  int
	gridHeight int
	palette    domain.Palette
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(roomRepo repository.RoomRepository, gridWidth, gridHeight int, palette domain.Palette) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	if gridWidth <= 0 || gridHeight <= 0 {
		panic("grid dimensions must be positive for RoomService")
	}
	return &RoomService{
		roomRepo:   roomRepo,
		gridWidth:  gridWidth,
		gridHeight: gridHeight,
		palette:    palette,
	}
}

// CreateRoom 创建一个空白网格的新房间。
// 返回房间对象和明文创建者令牌；令牌只在这里出现一次，落库的是 bcrypt 哈希。
func (s *RoomService) CreateRoom(ctx context.Context, creatorAddr string) (*domain.Room, string, error) {
	logCtx := logrus.WithField("creator_addr", creatorAddr)

	token, err := generateCreatorToken()
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate creator token")
		return nil, "", ErrInternalServer
	}
	tokenHash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		logCtx.WithError(err).Error("Failed to hash creator token")
		return nil, "", ErrInternalServer
	}

	room := &domain.Room{
		GridWidth:        s.gridWidth,
		GridHeight:       s.gridHeight,
		CanvasWidth:      defaultCanvasWidth,
		CanvasHeight:     defaultCanvasHeight,
		Grid:             domain.NewBlankGrid(s.gridWidth, s.gridHeight, s.palette.White()),
		CreatorAddr:      creatorAddr,
		CreatorTokenHash: string(tokenHash),
		Participants:     domain.StringList{}, // 创建者加入时才追加
		IsAvailable:      true,
		UpdatedAt:        time.Now(),
	}

	// 4 位数字房间号，撞号重试
	const maxAttempts = 10
	for attempt := 0; attempt < maxAttempts; attempt++ {
		id, err := randomRoomID()
		if err != nil {
			logCtx.WithError(err).Error("Failed to generate room ID")
			return nil, "", ErrInternalServer
		}
		room.ID = id

		err = s.roomRepo.Create(ctx, room)
		if err == nil {
			logCtx.WithField("room_id", room.ID).Info("Room created successfully")
			return room, token, nil
		}
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.WithField("room_id", id).Warnf("Room ID collision, retrying (attempt %d)...", attempt+1)
			continue
		}
		logCtx.WithError(err).Error("Failed to save new room to database")
		return nil, "", ErrStorageUnavailable
	}

	logCtx.Errorf("Failed to allocate a unique room ID after %d attempts", maxAttempts)
	return nil, "", ErrInternalServer
}

// VerifyCreatorToken 校验明文令牌是否匹配房间记录的哈希。
func VerifyCreatorToken(room *domain.Room, token string) bool {
	if token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(room.CreatorTokenHash), []byte(token)) == nil
}

// randomRoomID 生成 1000-9999 的随机房间号。
func randomRoomID() (uint, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return 0, fmt.Errorf("generate random room id: %w", err)
	}
	return uint(n.Int64()) + 1000, nil
}

// generateCreatorToken 生成 32 个十六进制字符的随机令牌。
func generateCreatorToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
