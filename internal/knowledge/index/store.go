package index

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	storeMagic   = "RQIX"
	storeVersion = 1
	headerSize   = len(storeMagic) + 1 + 4
)

type snapshot struct {
	Model   string
	Entries []Entry
}

// Save writes the full index to path. The blob is written to a temp file in
// the same directory, synced and renamed over path, so readers of path see
// either the previous blob or the new one.
func Save(path string, ix *Index) error {
	snap := snapshot{Model: ix.Model(), Entries: ix.Entries()}

	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(snap); err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}

	header := make([]byte, headerSize)
	copy(header, storeMagic)
	header[len(storeMagic)] = storeVersion
	binary.LittleEndian.PutUint32(header[len(storeMagic)+1:], crc32.ChecksumIEEE(payload.Bytes()))

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp index file: %w", err)
	}
	tmpPath := f.Name()
	cleanup := func() {
		f.Close()
		os.Remove(tmpPath)
	}
	if _, err := f.Write(header); err != nil {
		cleanup()
		return fmt.Errorf("writing index header: %w", err)
	}
	if _, err := f.Write(payload.Bytes()); err != nil {
		cleanup()
		return fmt.Errorf("writing index payload: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing index file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming index file: %w", err)
	}
	return nil
}

// Load reads the index persisted at path. A missing, truncated or corrupt
// blob yields an empty index; only the corrupt case is logged.
func Load(path string) *Index {
	logger := slog.Default().With("component", "index-store", "path", path)
	ix, err := decode(path)
	switch {
	case err == nil:
		logger.Info("index loaded", "documents", ix.Len(), "dimension", ix.Dimension())
		return ix
	case errors.Is(err, os.ErrNotExist):
		logger.Info("no persisted index, starting empty")
	default:
		logger.Warn("persisted index unreadable, starting empty", "error", err)
	}
	return New()
}

func decode(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < headerSize || string(data[:len(storeMagic)]) != storeMagic {
		return nil, errors.New("not an index file")
	}
	if v := data[len(storeMagic)]; v != storeVersion {
		return nil, fmt.Errorf("unsupported index version %d", v)
	}
	payload := data[headerSize:]
	want := binary.LittleEndian.Uint32(data[len(storeMagic)+1 : headerSize])
	if got := crc32.ChecksumIEEE(payload); got != want {
		return nil, fmt.Errorf("checksum mismatch: got %08x, want %08x", got, want)
	}

	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}
	ix := New()
	ix.SetModel(snap.Model)
	for _, e := range snap.Entries {
		if err := ix.Upsert(e.ID, e.Name, e.Content, e.Embedding); err != nil {
			return nil, fmt.Errorf("restoring entry %s: %w", e.ID, err)
		}
	}
	return ix, nil
}
