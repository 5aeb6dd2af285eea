package store

import (
	"crypto/rand"
	"errors"
	"math/big"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sujalbistaa/postbox/internal/models"
)

const (
	// KeyLength is the length of every retrieval key.
	KeyLength = 16

	keyAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

	// PublicFeedLimit caps the number of entries the public feed returns.
	PublicFeedLimit = 30
)

// ErrNotFound is returned when no message exists for a given key.
var ErrNotFound = errors.New("message not found")

// Stats holds the aggregate counters shown to admins. RepliedMessages
// and TotalReplies are counted independently from their own tables;
// they only diverge if the data is corrupted by hand.
type Stats struct {
	TotalMessages   int64 `json:"total_messages"`
	RepliedMessages int64 `json:"replied_messages"`
	PendingMessages int64 `json:"pending_messages"`
	TotalReplies    int64 `json:"total_replies"`
}

// Store owns all message and reply persistence.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the messages and replies tables.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&models.Message{}, &models.Reply{})
}

// GenerateKey produces a new 16-character [a-z0-9] key that no stored
// message uses. Collisions are vanishingly rare at this alphabet size,
// so the retry loop terminates practically immediately.
func (s *Store) GenerateKey() (string, error) {
	for {
		key, err := randomKey()
		if err != nil {
			return "", err
		}
		exists, err := s.KeyExists(key)
		if err != nil {
			return "", err
		}
		if !exists {
			return key, nil
		}
	}
}

func randomKey() (string, error) {
	alphabetSize := big.NewInt(int64(len(keyAlphabet)))
	buf := make([]byte, KeyLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		buf[i] = keyAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// KeyExists reports whether a message with the given key is stored.
func (s *Store) KeyExists(key string) (bool, error) {
	var count int64
	if err := s.db.Model(&models.Message{}).Where("key = ?", key).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// StoreMessage persists a new message and returns its generated key.
// Body length validation happens upstream.
func (s *Store) StoreMessage(body string, public bool) (string, error) {
	key, err := s.GenerateKey()
	if err != nil {
		return "", err
	}
	msg := models.Message{
		Key:    key,
		Body:   body,
		Public: public,
	}
	if err := s.db.Create(&msg).Error; err != nil {
		return "", err
	}
	return key, nil
}

// GetMessage looks up a message by key. Returns ErrNotFound when the
// key is unknown.
func (s *Store) GetMessage(key string) (*models.Message, error) {
	var msg models.Message
	err := s.db.Where("key = ?", key).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetReply returns the reply for a message key, or nil when no reply
// has been stored yet. An absent reply is not an error.
func (s *Store) GetReply(key string) (*models.Reply, error) {
	var reply models.Reply
	err := s.db.Where("message_key = ?", key).First(&reply).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// StoreReply inserts or replaces the reply for a message and marks the
// message replied. Returns ErrNotFound when the key is unknown; no
// reply row is ever created without its message.
func (s *Store) StoreReply(key, text string) error {
	exists, err := s.KeyExists(key)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		reply := models.Reply{MessageKey: key, Body: text}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"body", "created_at"}),
		}).Create(&reply).Error; err != nil {
			return err
		}
		return tx.Model(&models.Message{}).Where("key = ?", key).Update("replied", true).Error
	})
}

// ListAllMessages returns every message joined with its reply, unreplied
// first, newest first within each group.
func (s *Store) ListAllMessages() ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.Preload("Reply").
		Order("replied asc, created_at desc").
		Find(&msgs).Error
	return msgs, err
}

// ListPublicMessages returns up to PublicFeedLimit public messages in a
// fresh random order on every call.
func (s *Store) ListPublicMessages() ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.Preload("Reply").
		Where("public = ?", true).
		Order("random()").
		Limit(PublicFeedLimit).
		Find(&msgs).Error
	return msgs, err
}

// TogglePublic flips the public flag and returns the new value.
func (s *Store) TogglePublic(key string) (bool, error) {
	msg, err := s.GetMessage(key)
	if err != nil {
		return false, err
	}
	newValue := !msg.Public
	if err := s.db.Model(msg).Update("public", newValue).Error; err != nil {
		return false, err
	}
	return newValue, nil
}

// DeleteMessage removes the reply first, then the message. Returns
// ErrNotFound when the key is unknown.
func (s *Store) DeleteMessage(key string) error {
	exists, err := s.KeyExists(key)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_key = ?", key).Delete(&models.Reply{}).Error; err != nil {
			return err
		}
		return tx.Where("key = ?", key).Delete(&models.Message{}).Error
	})
}

// GetStats computes the aggregate counters. Pending is derived from the
// other two message counts; TotalReplies is counted from the replies
// table on its own.
func (s *Store) GetStats() (Stats, error) {
	var stats Stats
	if err := s.db.Model(&models.Message{}).Count(&stats.TotalMessages).Error; err != nil {
		return Stats{}, err
	}
	if err := s.db.Model(&models.Message{}).Where("replied = ?", true).Count(&stats.RepliedMessages).Error; err != nil {
		return Stats{}, err
	}
	stats.PendingMessages = stats.TotalMessages - stats.RepliedMessages
	if err := s.db.Model(&models.Reply{}).Count(&stats.TotalReplies).Error; err != nil {
		return Stats{}, err
	}
	return stats, nil
}
