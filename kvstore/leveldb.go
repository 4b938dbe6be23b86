package kvstore

import (
	"errors"
	"os"

	"github.com/syndtr/goleveldb/leveldb"
	lfilter "github.com/syndtr/goleveldb/leveldb/filter"
	lopt "github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/ztrue/tracerr"
)

type LevelDB struct {
	db *leveldb.DB
}

var _ Store = (*LevelDB)(nil)

// OpenLevelDB opens or creates a leveldb store under path.
func OpenLevelDB(path string) (*LevelDB, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}
	o := &lopt.Options{
		Filter: lfilter.NewBloomFilter(1000),
	}
	db, err := leveldb.OpenFile(path, o)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &LevelDB{db: db}, nil
}

// NewMemLevelDB returns a leveldb store kept in memory.
func NewMemLevelDB() (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	v, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return v, tracerr.Wrap(err)
}

func (l *LevelDB) Put(key, value []byte) error {
	return tracerr.Wrap(l.db.Put(key, value, nil))
}

func (l *LevelDB) Delete(key []byte) error {
	return tracerr.Wrap(l.db.Delete(key, nil))
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}
