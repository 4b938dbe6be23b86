package kvstore

import (
	"errors"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/ztrue/tracerr"
	"go.uber.org/zap"
)

// badgerLogger routes badger's log lines to zap.
type badgerLogger struct {
	log *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.log.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.log.Infof(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.log.Debugf(format, args...) }

type Badger struct {
	db *badger.DB
}

var _ Store = (*Badger)(nil)

// OpenBadger opens a badger store under path. An empty path keeps the data
// in memory.
func OpenBadger(path string, log *zap.SugaredLogger) (*Badger, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{log})
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return value, tracerr.Wrap(err)
}

func (b *Badger) Put(key, value []byte) error {
	return tracerr.Wrap(b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	}))
}

func (b *Badger) Delete(key []byte) error {
	return tracerr.Wrap(b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}))
}

func (b *Badger) Close() error {
	return b.db.Close()
}
