// Package snapshot implements channel snapshot and persistence (spec §4.4):
// durably capturing a GameStateSnapshot so a restarted process, or a peer
// joining a pre-existing channel, re-establishes exact state without
// replaying every move from scratch.
package snapshot

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"gochannel/internal/rules"
)

// magic identifies a snapshot file written by this package; it guards
// against silently decoding an unrelated file as a snapshot.
const magic = "CGS1"

type codec byte

const (
	codecSnappy codec = 1
	codecZstd   codec = 2
)

// DefaultMoveThreshold, DefaultTimeThreshold, and DefaultCompressMoves mirror
// internal/config's defaults, duplicated here only as fallbacks for callers
// that construct a Checkpointer directly rather than via config.Config.
const (
	DefaultMoveThreshold = 10
	DefaultTimeThreshold = 30 * time.Second
	DefaultCompressMoves = 1000
)

// ErrCorrupt is returned when an on-disk snapshot exists but fails to
// decode. Spec §4.4: "Corrupt snapshots fail loudly; they are never
// silently truncated."
var ErrCorrupt = errors.New("snapshot: corrupt snapshot file")

// Checkpointer tracks the write-policy counters for one channel (spec §4.4
// "Write policy") and performs the atomic write/load procedure.
type Checkpointer struct {
	dir           string
	moveThreshold int
	timeThreshold time.Duration
	compressMoves int
	now           func() time.Time

	mu                 sync.Mutex
	movesSinceSnapshot int
	lastSnapshotTime   time.Time
}

// NewCheckpointer constructs a checkpointer writing to dir. Non-positive
// moveThreshold/compressMoves or non-positive timeThreshold fall back to
// this package's defaults.
func NewCheckpointer(dir string, moveThreshold int, timeThreshold time.Duration, compressMoves int) *Checkpointer {
	if moveThreshold <= 0 {
		moveThreshold = DefaultMoveThreshold
	}
	if timeThreshold <= 0 {
		timeThreshold = DefaultTimeThreshold
	}
	if compressMoves <= 0 {
		compressMoves = DefaultCompressMoves
	}
	return &Checkpointer{
		dir:           dir,
		moveThreshold: moveThreshold,
		timeThreshold: timeThreshold,
		compressMoves: compressMoves,
		now:           time.Now,

		lastSnapshotTime: time.Now(),
	}
}

// WithClock overrides the checkpointer's time source; tests use this to
// make the time-threshold branch of NeedsWrite deterministic.
func (c *Checkpointer) WithClock(now func() time.Time) *Checkpointer {
	c.now = now
	return c
}

// RecordMove notes that one more move has been applied since the last
// snapshot write, for NeedsWrite's move-count threshold.
func (c *Checkpointer) RecordMove() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.movesSinceSnapshot++
}

// NeedsWrite reports whether either write-policy threshold has been
// crossed since the last successful write (spec §4.4 "Write policy").
func (c *Checkpointer) NeedsWrite() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.movesSinceSnapshot >= c.moveThreshold {
		return true
	}
	if c.movesSinceSnapshot >= 1 && c.now().Sub(c.lastSnapshotTime) >= c.timeThreshold {
		return true
	}
	return false
}

// Write atomically persists snap as gameID's snapshot (spec §4.4 "Write
// procedure"), resetting both threshold counters on success. Snapshots
// with at least compressMoves moves are zstd-compressed; smaller ones use
// the cheaper snappy codec.
func (c *Checkpointer) Write(gameID string, snap rules.GameStateSnapshot) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	var gobBuf bytes.Buffer
	if err := gob.NewEncoder(&gobBuf).Encode(snap); err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}

	chosen := codecSnappy
	if len(snap.Moves) >= c.compressMoves {
		chosen = codecZstd
	}
	payload, err := compress(chosen, gobBuf.Bytes())
	if err != nil {
		return fmt.Errorf("snapshot: compress: %w", err)
	}

	out := make([]byte, 0, len(magic)+1+len(payload))
	out = append(out, magic...)
	out = append(out, byte(chosen))
	out = append(out, payload...)

	tmpPath := filepath.Join(c.dir, gameID+".snapshot.tmp")
	finalPath := filepath.Join(c.dir, gameID+".snapshot")

	if err := writeFileSynced(tmpPath, out); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		if copyErr := copyThenDelete(tmpPath, finalPath); copyErr != nil {
			return copyErr
		}
	}

	c.mu.Lock()
	c.movesSinceSnapshot = 0
	c.lastSnapshotTime = c.now()
	c.mu.Unlock()
	return nil
}

// Load reads gameID's snapshot from dir (spec §4.4 "Load procedure"). ok
// is false, with a nil error, when no snapshot file exists yet — callers
// should then start from an empty board. Any other failure to decode is
// reported as an error wrapping ErrCorrupt, never silently ignored.
func Load(dir, gameID string) (snap rules.GameStateSnapshot, ok bool, err error) {
	path := filepath.Join(dir, gameID+".snapshot")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return rules.GameStateSnapshot{}, false, nil
		}
		return rules.GameStateSnapshot{}, false, err
	}

	if len(data) < len(magic)+1 || string(data[:len(magic)]) != magic {
		return rules.GameStateSnapshot{}, false, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	chosen := codec(data[len(magic)])
	rawGob, err := decompress(chosen, data[len(magic)+1:])
	if err != nil {
		return rules.GameStateSnapshot{}, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if err := gob.NewDecoder(bytes.NewReader(rawGob)).Decode(&snap); err != nil {
		return rules.GameStateSnapshot{}, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return snap, true, nil
}

// Delete removes gameID's snapshot file, if any.
func Delete(dir, gameID string) error {
	path := filepath.Join(dir, gameID+".snapshot")
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// List returns the game IDs with a snapshot file in dir.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	const suffix = ".snapshot"
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			ids = append(ids, name[:len(name)-len(suffix)])
		}
	}
	return ids, nil
}

func compress(c codec, raw []byte) ([]byte, error) {
	switch c {
	case codecSnappy:
		return snappy.Encode(nil, raw), nil
	case codecZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	default:
		return nil, fmt.Errorf("snapshot: unknown codec %d", c)
	}
}

func decompress(c codec, data []byte) ([]byte, error) {
	switch c {
	case codecSnappy:
		return snappy.Decode(nil, data)
	case codecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	default:
		return nil, fmt.Errorf("unknown codec %d", c)
	}
}

// writeFileSynced writes data to path and fsyncs it, so a rename
// immediately afterward observes durable content (spec §4.4 step 2:
// "Write ... flush, then rename").
func writeFileSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// copyThenDelete is the spec §4.4 step 3 fallback for a cross-device
// rename failure: copy the bytes, verify sizes match, then remove the
// temp file. The previous final file is never touched until the copy is
// verified, preserving the atomic-rename guarantee's intent.
func copyThenDelete(tmpPath, finalPath string) error {
	src, err := os.Open(tmpPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(finalPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	srcInfo, err := os.Stat(tmpPath)
	if err != nil {
		return err
	}
	dstInfo, err := os.Stat(finalPath)
	if err != nil {
		return err
	}
	if srcInfo.Size() != dstInfo.Size() {
		return fmt.Errorf("snapshot: copy verification failed: size mismatch (%d != %d)", srcInfo.Size(), dstInfo.Size())
	}
	return os.Remove(tmpPath)
}
