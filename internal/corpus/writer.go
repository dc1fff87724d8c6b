package corpus

import (
	"encoding/json"
	"fmt"
	"strconv"

	"go.etcd.io/bbolt"
)

// Write persists an index file for a tenant at path.
//
// Index files are built offline (patentctl import, ingestion tooling) and
// loaded read-only by the service; this is the only writer of the layout.
// The chunks are validated the same way loading validates them.
func Write(path, tenant string, dimension int, chunks []Chunk) error {
	// NewIndex performs the id/dimension validation and sorts by id.
	ix, err := NewIndex(tenant, dimension, chunks)
	if err != nil {
		return fmt.Errorf("writing index for tenant %q: %w", tenant, err)
	}

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return fmt.Errorf("opening index file: %w", err)
	}
	defer db.Close()

	err = db.Update(func(tx *bbolt.Tx) error {
		header, err := tx.CreateBucketIfNotExists(bucketHeader)
		if err != nil {
			return err
		}
		chunkBucket, err := tx.CreateBucketIfNotExists(bucketChunks)
		if err != nil {
			return err
		}
		vectorBucket, err := tx.CreateBucketIfNotExists(bucketVectors)
		if err != nil {
			return err
		}

		if err := header.Put(keyFormatVersion, []byte(strconv.Itoa(FormatVersion))); err != nil {
			return err
		}
		if err := header.Put(keyTenant, []byte(tenant)); err != nil {
			return err
		}
		if err := header.Put(keyDimension, []byte(strconv.Itoa(dimension))); err != nil {
			return err
		}
		if err := header.Put(keyCount, []byte(strconv.Itoa(ix.Len()))); err != nil {
			return err
		}

		for _, c := range ix.Chunks() {
			rec, err := json.Marshal(chunkRecord{Content: c.Content, Metadata: c.Metadata})
			if err != nil {
				return fmt.Errorf("marshaling chunk %q: %w", c.ID, err)
			}
			if err := chunkBucket.Put([]byte(c.ID), rec); err != nil {
				return err
			}
			if err := vectorBucket.Put([]byte(c.ID), encodeVector(c.Vector)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing index for tenant %q: %w", tenant, err)
	}
	return nil
}
