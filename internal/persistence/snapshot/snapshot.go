// Package snapshot persists a simulated mining world between runs.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int       `json:"version"`
	AgentID string    `json:"agent_id"`
	SavedAt time.Time `json:"saved_at"`
	Digest  string    `json:"digest"`
}

// WorldV1 is one agent's world: generator parameters, every chunk that was ever
// generated, chests and the agent's own state.
type WorldV1 struct {
	Header Header `json:"header"`

	Seed        int64 `json:"seed"`
	MinY        int   `json:"min_y"`
	MaxY        int   `json:"max_y"`
	BoundaryR   int   `json:"boundary_r"`
	OrePermille int   `json:"ore_permille"`

	// Palette names the block ids used in Chunks so a catalog reorder does not
	// corrupt a saved world.
	Palette []string  `json:"palette"`
	Chunks  []ChunkV1 `json:"chunks"`
	Chests  []ChestV1 `json:"chests,omitempty"`

	Feet      [3]int         `json:"feet"`
	Held      string         `json:"held,omitempty"`
	Inventory map[string]int `json:"inventory,omitempty"`
}

type ChunkV1 struct {
	CX, CY, CZ int
	// Blocks is EncodeRLE of the chunk's palette ids.
	Blocks []byte
}

type ChestV1 struct {
	Pos   [3]int         `json:"pos"`
	Items map[string]int `json:"items"`
}

func WriteSnapshot(path string, snap WorldV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap WorldV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (WorldV1, error) {
	var snap WorldV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is for humans and tooling; gob carries it too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	err = json.Unmarshal(line, &h)
	return h, err
}
