package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"exam-practice/backend/internal/session/domain"
)

var sessionsBucket = []byte("admin_sessions")

// BoltRepository stores sessions in a single BBolt bucket, for single-node deployments.
type BoltRepository struct {
	db *bbolt.DB
}

// NewBoltRepository returns a Repository backed by db, creating the bucket if needed.
func NewBoltRepository(db *bbolt.DB) (*BoltRepository, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create sessions bucket: %w", err)
	}
	return &BoltRepository{db: db}, nil
}

// OpenBoltRepository opens a BBolt database at path and returns a Repository over it.
func OpenBoltRepository(path string, options *bbolt.Options) (*BoltRepository, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	r, err := NewBoltRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the underlying BBolt database.
func (r *BoltRepository) Close() error {
	return r.db.Close()
}

func (r *BoltRepository) Save(ctx context.Context, s *domain.AdminSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ToRecord(s))
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(s.ID), data)
	})
}

func (r *BoltRepository) Get(ctx context.Context, id string) (*domain.AdminSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		rec   Record
		found bool
	)
	err := r.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(sessionsBucket).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return rec.ToDomain(), nil
}

func (r *BoltRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(id))
	})
}
