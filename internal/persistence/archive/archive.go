// Package archive keeps dated copies of saved world snapshots.
package archive

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"voxelminer.ai/internal/persistence/snapshot"
)

type Meta struct {
	AgentID   string `json:"agent_id"`
	Snapshot  string `json:"snapshot"`
	Digest    string `json:"digest"`
	Seed      int64  `json:"seed"`
	Chunks    int    `json:"chunks"`
	SavedAt   string `json:"saved_at"`
	CreatedAt string `json:"created_at"`
}

// ArchiveSnapshot copies a written snapshot into agentDir/archives/<saved-at>/
// with a meta.json beside it, then prunes all but the newest keep generations.
// keep <= 0 keeps everything.
func ArchiveSnapshot(agentDir, snapshotPath string, snap snapshot.WorldV1, keep int) (archivedPath string, err error) {
	stamp := snap.Header.SavedAt.UTC().Format("20060102-150405")
	dir := filepath.Join(agentDir, "archives", stamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", err
	}

	meta := Meta{
		AgentID:   snap.Header.AgentID,
		Snapshot:  filepath.Base(dst),
		Digest:    snap.Header.Digest,
		Seed:      snap.Seed,
		Chunks:    len(snap.Chunks),
		SavedAt:   snap.Header.SavedAt.UTC().Format(time.RFC3339Nano),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
	}
	if keep > 0 {
		if err := prune(filepath.Join(agentDir, "archives"), keep); err != nil {
			return dst, err
		}
	}
	return dst, nil
}

// Generations lists archive directory names, oldest first.
func Generations(agentDir string) ([]string, error) {
	ents, err := os.ReadDir(filepath.Join(agentDir, "archives"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func prune(root string, keep int) error {
	gens, err := Generations(filepath.Dir(root))
	if err != nil {
		return err
	}
	for len(gens) > keep {
		if err := os.RemoveAll(filepath.Join(root, gens[0])); err != nil {
			return err
		}
		gens = gens[1:]
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
