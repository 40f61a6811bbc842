package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/VishalGohania/excelidraw/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLStore implements AccountRepo, RoomRepo and ChatRepo on top of gorm.
type SQLStore struct{ db *gorm.DB }

// OpenSQLite opens (or creates) the sqlite database at dsn and migrates the schema.
// ":memory:" is accepted for tests.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows one writer; a single connection also keeps ":memory:" a single database.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Account{}, &models.Room{}, &models.ChatMessage{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// NewSQLStore wraps a database opened by OpenSQLite.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateAccount returns ErrAlreadyExists for a taken id.
func (s *SQLStore) CreateAccount(ctx context.Context, account *models.Account) error {
	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *SQLStore) GetAccount(ctx context.Context, id string) (models.Account, bool, error) {
	var a models.Account
	err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Account{}, false, nil
	}
	if err != nil {
		return models.Account{}, false, fmt.Errorf("get account: %w", err)
	}
	return a, true, nil
}

// CreateRoom assigns room.ID. A taken slug returns ErrAlreadyExists.
func (s *SQLStore) CreateRoom(ctx context.Context, room *models.Room) error {
	if err := s.db.WithContext(ctx).Create(room).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

func (s *SQLStore) GetRoomByID(ctx context.Context, id uint) (models.Room, bool, error) {
	var r models.Room
	err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Room{}, false, nil
	}
	if err != nil {
		return models.Room{}, false, fmt.Errorf("get room %d: %w", id, err)
	}
	return r, true, nil
}

func (s *SQLStore) GetRoomBySlug(ctx context.Context, slug string) (models.Room, bool, error) {
	var r models.Room
	err := s.db.WithContext(ctx).First(&r, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Room{}, false, nil
	}
	if err != nil {
		return models.Room{}, false, fmt.Errorf("get room %q: %w", slug, err)
	}
	return r, true, nil
}

func (s *SQLStore) ExistsSlug(ctx context.Context, slug string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Room{}).Where("slug = ?", slug).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count rooms: %w", err)
	}
	return n > 0, nil
}

// ListRoomsByAdmin returns the rooms created by adminID, newest first.
func (s *SQLStore) ListRoomsByAdmin(ctx context.Context, adminID string, limit int) ([]models.Room, error) {
	var rooms []models.Room
	q := s.db.WithContext(ctx).Where("admin_id = ?", adminID).Order("created_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// AppendChat assigns msg.ID from the table sequence.
func (s *SQLStore) AppendChat(ctx context.Context, msg *models.ChatMessage) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("append chat: %w", err)
	}
	return nil
}

func (s *SQLStore) ListChats(ctx context.Context, roomID uint, limit int) ([]models.ChatMessage, error) {
	msgs := []models.ChatMessage{}
	q := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return msgs, nil
}
