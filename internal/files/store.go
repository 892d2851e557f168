package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
	"go.etcd.io/bbolt"
)

var ErrNotFound = errors.New("attachment not found")

var (
	metaBucket = []byte("attachment_meta")
	dataBucket = []byte("attachment_data")
)

// Attachment is a file sent along with a chat message.
type Attachment struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	Data        []byte    `json:"-"`
}

// Store keeps attachment bytes and hands out download URLs.
type Store interface {
	Save(ctx context.Context, a Attachment) (Attachment, error)
	Get(ctx context.Context, id string) (Attachment, error)
	Delete(ctx context.Context, id string) error
	URL(id string) string
}

// BoltStore stores attachments in a local bbolt file.
type BoltStore struct {
	db      *bbolt.DB
	baseURL string
}

// OpenBoltStore opens (creating if needed) the attachment database at path.
func OpenBoltStore(path, baseURL string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open attachment db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(metaBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(dataBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create attachment buckets: %w", err)
	}
	return &BoltStore{db: db, baseURL: baseURL}, nil
}

// Save assigns an id and persists the attachment.
func (s *BoltStore) Save(ctx context.Context, a Attachment) (Attachment, error) {
	if err := ctx.Err(); err != nil {
		return Attachment{}, err
	}
	a.ID = ksuid.New().String()
	a.Size = len(a.Data)
	a.CreatedAt = time.Now().UTC()

	meta, err := json.Marshal(a)
	if err != nil {
		return Attachment{}, err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(metaBucket).Put([]byte(a.ID), meta); err != nil {
			return err
		}
		return tx.Bucket(dataBucket).Put([]byte(a.ID), a.Data)
	})
	if err != nil {
		return Attachment{}, fmt.Errorf("save attachment: %w", err)
	}
	return a, nil
}

// Get loads an attachment including its bytes.
func (s *BoltStore) Get(ctx context.Context, id string) (Attachment, error) {
	if err := ctx.Err(); err != nil {
		return Attachment{}, err
	}
	var a Attachment
	err := s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(metaBucket).Get([]byte(id))
		if meta == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(meta, &a); err != nil {
			return err
		}
		// bbolt values are only valid inside the transaction
		data := tx.Bucket(dataBucket).Get([]byte(id))
		a.Data = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return Attachment{}, err
	}
	return a, nil
}

func (s *BoltStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(metaBucket).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(dataBucket).Delete([]byte(id))
	})
}

// URL returns the public download location of an attachment.
func (s *BoltStore) URL(id string) string {
	return s.baseURL + "/media/attachments/" + id
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
