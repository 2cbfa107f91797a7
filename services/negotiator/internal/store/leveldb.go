package store

import (
	"context"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/accordsai/negotiation/pkg/domain"
	"github.com/accordsai/negotiation/pkg/keylock"
)

const levelPrefix = "pv/"

// Level is an embedded goleveldb Store for single-node deployments.
type Level struct {
	db    *leveldb.DB
	locks *keylock.Table
}

// OpenLevel opens or creates the database directory at path.
func OpenLevel(path string) (*Level, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Level{db: db, locks: keylock.New()}, nil
}

// OpenLevelMemory opens a Level backed by memory storage.
func OpenLevelMemory() (*Level, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Level{db: db, locks: keylock.New()}, nil
}

func levelKey(id string, role domain.Role) []byte {
	return []byte(levelPrefix + key(id, role))
}

var syncWrite = &opt.WriteOptions{Sync: true}

func (l *Level) Add(ctx context.Context, id string, role domain.Role, value domain.Amount) error {
	canon, err := normalize(id, role, value)
	if err != nil {
		return err
	}
	unlock := l.locks.Lock(key(id, role))
	defer unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.db.Put(levelKey(id, role), []byte(canon), syncWrite)
}

func (l *Level) Update(ctx context.Context, id string, role domain.Role, value domain.Amount) error {
	canon, err := normalize(id, role, value)
	if err != nil {
		return err
	}
	unlock := l.locks.Lock(key(id, role))
	defer unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	ok, err := l.db.Has(levelKey(id, role), nil)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(id, role)
	}
	return l.db.Put(levelKey(id, role), []byte(canon), syncWrite)
}

func (l *Level) Query(ctx context.Context, id string, role domain.Role) (domain.Amount, error) {
	if err := checkKey(id, role); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, err := l.db.Get(levelKey(id, role), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return "", notFound(id, role)
		}
		return "", err
	}
	return domain.Amount(raw), nil
}

func (l *Level) Close() error { return l.db.Close() }
