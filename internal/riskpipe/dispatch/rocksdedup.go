package dispatch

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/tecbot/gorocksdb"

	"github.com/chenzhangda16/web3-riskpipe/pkg/hash"
)

// RocksDeduper persists fingerprints so dedup survives restarts; with
// at-least-once delivery a crash otherwise re-dispatches every alert the
// broker redelivers. Keys are the 32-byte fingerprint; a secondary
// bucket index drives TTL eviction.
type RocksDeduper struct {
	mu sync.Mutex
	db *gorocksdb.DB
	ro *gorocksdb.ReadOptions
	wo *gorocksdb.WriteOptions

	bucketSec         int64
	lastCleanedBucket int64
}

const (
	rocksMainPrefix = byte('m')
	rocksIdxPrefix  = byte('i')
	rocksMetaKey    = "meta:last_cleaned_bucket"
)

func OpenRocksDeduper(path string, bucket time.Duration) (*RocksDeduper, error) {
	if bucket <= 0 {
		return nil, errors.New("dispatch: rocks dedup bucket must be > 0")
	}
	opts := gorocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	opts.IncreaseParallelism(2)

	db, err := gorocksdb.OpenDb(opts, path)
	if err != nil {
		return nil, err
	}
	d := &RocksDeduper{
		db:        db,
		ro:        gorocksdb.NewDefaultReadOptions(),
		wo:        gorocksdb.NewDefaultWriteOptions(),
		bucketSec: int64(bucket / time.Second),
	}
	found, err := d.loadLastCleanedBucket()
	if err != nil {
		d.Close()
		return nil, err
	}
	if !found {
		// Fresh store: start eviction from the current bucket, not epoch.
		d.lastCleanedBucket = time.Now().Unix()/d.bucketSec - 1
	}
	return d, nil
}

func (d *RocksDeduper) Seen(fp hash.Hash32, now time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	val, err := d.db.Get(d.ro, mainKey(fp))
	if err != nil {
		return false, err
	}
	defer val.Free()
	if !val.Exists() {
		return false, nil
	}
	return decodeI64(val.Data()) >= now.Unix(), nil
}

func (d *RocksDeduper) Add(fp hash.Hash32, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	expire := now.Add(ttl).Unix()

	d.mu.Lock()
	defer d.mu.Unlock()

	wb := gorocksdb.NewWriteBatch()
	defer wb.Destroy()
	wb.Put(mainKey(fp), encodeI64(expire))
	wb.Put(idxKey(expire/d.bucketSec, fp), encodeI64(expire))
	if err := d.db.Write(d.wo, wb); err != nil {
		return err
	}
	return d.evictLocked(now.Unix())
}

// evictLocked clears whole buckets strictly older than the current one,
// advancing from where the last pass stopped.
func (d *RocksDeduper) evictLocked(nowTs int64) error {
	target := nowTs/d.bucketSec - 1
	if target <= d.lastCleanedBucket {
		return nil
	}
	for b := d.lastCleanedBucket + 1; b <= target; b++ {
		if err := d.dropBucket(b); err != nil {
			return err
		}
		d.lastCleanedBucket = b
	}
	return d.db.Put(d.wo, []byte(rocksMetaKey), encodeI64(d.lastCleanedBucket))
}

func (d *RocksDeduper) dropBucket(bucket int64) error {
	prefix := idxPrefix(bucket)
	it := d.db.NewIterator(d.ro)
	defer it.Close()

	wb := gorocksdb.NewWriteBatch()
	defer wb.Destroy()

	for it.Seek(prefix); it.Valid(); it.Next() {
		k := it.Key()
		kb := append([]byte(nil), k.Data()...)
		k.Free()
		if len(kb) < len(prefix) || string(kb[:len(prefix)]) != string(prefix) {
			break
		}
		// idx key layout: 'i' + bucket(8) + fp(32)
		if len(kb) == 1+8+32 {
			var fp hash.Hash32
			copy(fp[:], kb[9:])
			wb.Delete(mainKey(fp))
		}
		wb.Delete(kb)
	}
	return d.db.Write(d.wo, wb)
}

func (d *RocksDeduper) loadLastCleanedBucket() (bool, error) {
	val, err := d.db.Get(d.ro, []byte(rocksMetaKey))
	if err != nil {
		return false, err
	}
	defer val.Free()
	if !val.Exists() {
		return false, nil
	}
	d.lastCleanedBucket = decodeI64(val.Data())
	return true, nil
}

func (d *RocksDeduper) Close() error {
	if d.ro != nil {
		d.ro.Destroy()
	}
	if d.wo != nil {
		d.wo.Destroy()
	}
	if d.db != nil {
		d.db.Close()
	}
	return nil
}

func mainKey(fp hash.Hash32) []byte {
	k := make([]byte, 1+32)
	k[0] = rocksMainPrefix
	copy(k[1:], fp[:])
	return k
}

func idxPrefix(bucket int64) []byte {
	k := make([]byte, 1+8)
	k[0] = rocksIdxPrefix
	binary.BigEndian.PutUint64(k[1:], uint64(bucket))
	return k
}

func idxKey(bucket int64, fp hash.Hash32) []byte {
	k := make([]byte, 1+8+32)
	k[0] = rocksIdxPrefix
	binary.BigEndian.PutUint64(k[1:], uint64(bucket))
	copy(k[9:], fp[:])
	return k
}

func encodeI64(v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return b[:]
}

func decodeI64(b []byte) int64 {
	if len(b) < 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}
