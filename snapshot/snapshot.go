// Package snapshot saves and loads archive entry tables.
//
// A snapshot holds the central directory metadata of an archive without any
// entry content, so a later build can be compared against it after the
// original archive is gone. Snapshots are FlatBuffers encoded
// (schema/snapshot.fbs).
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/meigma/p4k/internal/fb"
	"github.com/meigma/p4k/internal/p4ktype"
)

// Version is the snapshot format version written by Encode.
const Version = 1

// ErrInvalid is returned when data is not a readable snapshot.
var ErrInvalid = errors.New("snapshot: invalid data")

// Snapshot is a decoded entry table.
type Snapshot struct {
	// Source describes where the entries were read from, such as the
	// archive path or source identifier.
	Source string

	// Entries are in central directory order.
	Entries []*p4ktype.Entry
}

// Encode serializes entries read from source.
func Encode(source string, entries []*p4ktype.Entry) []byte {
	builder := flatbuffers.NewBuilder(64 * (len(entries) + 1))

	offsets := make([]flatbuffers.UOffsetT, len(entries))
	for i, e := range entries {
		name := builder.CreateString(e.Name)
		fb.EntryStart(builder)
		fb.EntryAddName(builder, name)
		fb.EntryAddCompressedSize(builder, e.CompressedSize)
		fb.EntryAddUncompressedSize(builder, e.UncompressedSize)
		fb.EntryAddCompression(builder, uint16(e.Compression))
		fb.EntryAddEncrypted(builder, e.Encrypted)
		fb.EntryAddOffset(builder, e.Offset)
		fb.EntryAddDosTime(builder, e.DOSTime)
		fb.EntryAddCrc32(builder, e.CRC32)
		offsets[i] = fb.EntryEnd(builder)
	}

	fb.SnapshotStartEntriesVector(builder, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	entriesOffset := builder.EndVector(len(offsets))
	sourceOffset := builder.CreateString(source)

	fb.SnapshotStart(builder)
	fb.SnapshotAddVersion(builder, Version)
	fb.SnapshotAddSource(builder, sourceOffset)
	fb.SnapshotAddEntries(builder, entriesOffset)
	fb.FinishSnapshotBuffer(builder, fb.SnapshotEnd(builder))
	return builder.FinishedBytes()
}

// Write encodes entries and writes them to w.
func Write(w io.Writer, source string, entries []*p4ktype.Entry) error {
	if _, err := w.Write(Encode(source, entries)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// WriteFile atomically writes a snapshot to path.
func WriteFile(path, source string, entries []*p4ktype.Entry) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	if err := Write(tmp, source, entries); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Load decodes a snapshot. The returned entries do not alias data.
func Load(data []byte) (s *Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			s = nil
			err = fmt.Errorf("%w: %v", ErrInvalid, r)
		}
	}()
	if len(data) < 8 || string(data[4:8]) != fb.SnapshotIdentifier {
		return nil, fmt.Errorf("%w: missing identifier", ErrInvalid)
	}

	root := fb.GetRootAsSnapshot(data, 0)
	if v := root.Version(); v != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalid, v)
	}

	n := root.EntriesLength()
	s = &Snapshot{
		Source:  string(root.Source()),
		Entries: make([]*p4ktype.Entry, 0, n),
	}
	var e fb.Entry
	for i := range n {
		if !root.Entries(&e, i) {
			return nil, fmt.Errorf("%w: entry %d", ErrInvalid, i)
		}
		s.Entries = append(s.Entries, &p4ktype.Entry{
			Name:             string(e.Name()),
			CompressedSize:   e.CompressedSize(),
			UncompressedSize: e.UncompressedSize(),
			Compression:      p4ktype.Compression(e.Compression()),
			Encrypted:        e.Encrypted(),
			Offset:           e.Offset(),
			DOSTime:          e.DosTime(),
			CRC32:            e.Crc32(),
		})
	}
	return s, nil
}

// ReadFile loads the snapshot stored at path.
func ReadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is chosen by the caller
	if err != nil {
		return nil, err
	}
	s, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s, nil
}
