package kvstore

import (
	"os"
	"strings"

	"github.com/nutsdb/nutsdb"
	"github.com/ztrue/tracerr"
)

const bucket = "arrays"

type NutsDB struct {
	db *nutsdb.DB
}

var _ Store = (*NutsDB)(nil)

func OpenNutsDB(dir string) (*NutsDB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	db, err := nutsdb.Open(
		nutsdb.DefaultOptions,
		nutsdb.WithDir(dir),
		nutsdb.WithSegmentSize(8<<20),
	)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &NutsDB{db: db}, nil
}

// notFound covers the index miss, the deleted entry and the missing bucket
// errors, which nutsdb reports with distinct values.
func notFound(err error) bool {
	return nutsdb.IsBucketNotFound(err) || strings.Contains(err.Error(), "not found")
}

func (n *NutsDB) Get(key []byte) ([]byte, error) {
	var value []byte
	err := n.db.View(func(tx *nutsdb.Tx) error {
		e, err := tx.Get(bucket, key)
		if err != nil {
			return err
		}
		value = append([]byte(nil), e.Value...)
		return nil
	})
	if err != nil && notFound(err) {
		return nil, ErrNotFound
	}
	return value, tracerr.Wrap(err)
}

func (n *NutsDB) Put(key, value []byte) error {
	return tracerr.Wrap(n.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Put(bucket, key, value, nutsdb.Persistent)
	}))
}

func (n *NutsDB) Delete(key []byte) error {
	err := n.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Delete(bucket, key)
	})
	if err != nil && notFound(err) {
		return nil
	}
	return tracerr.Wrap(err)
}

func (n *NutsDB) Close() error {
	return n.db.Close()
}
