// Command minerd runs the excavation engine against a simulated world and serves
// the websocket control bridge.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"voxelminer.ai/internal/catalogs"
	"voxelminer.ai/internal/coord"
	"voxelminer.ai/internal/gridworld"
	"voxelminer.ai/internal/miner"
	"voxelminer.ai/internal/persistence/archive"
	"voxelminer.ai/internal/persistence/indexdb"
	"voxelminer.ai/internal/persistence/journal"
	"voxelminer.ai/internal/persistence/r2s3"
	"voxelminer.ai/internal/persistence/snapshot"
	"voxelminer.ai/internal/transport/bridge"
	"voxelminer.ai/internal/tuning"
)

func main() {
	var (
		addr         = flag.String("addr", "127.0.0.1:8765", "http listen address")
		configDir    = flag.String("configs", "./configs", "config directory (blocks.json, items.json); empty uses the built-in catalogs")
		settingsPath = flag.String("settings", "", "path to settings.yaml (default: <configs>/settings.yaml)")
		worldPath    = flag.String("world", "", "path to world.yaml (default: <configs>/world.yaml)")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		secret       = flag.String("secret", "", "bridge shared secret (or set MINERD_SECRET)")
		team         = flag.String("team", "", "comma-separated agent ids sharing quarry zones (default: this agent only)")
		disableDB    = flag.Bool("disable_db", false, "disable the session index")
		placeChests  = flag.Bool("place_chests", true, "place a chest at every registered deposit location in the simulated world")
		useSnapshot  = flag.Bool("snapshot", true, "restore the simulated world from <data>/agents/<id>/world.snap.zst and save it on shutdown")
		archiveKeep  = flag.Int("archive_keep", 5, "dated snapshot copies kept under <agent>/archives (0 disables archiving)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[minerd] ", log.LstdFlags|log.Lmicroseconds)

	cats := catalogs.Default()
	if dir := strings.TrimSpace(*configDir); dir != "" {
		if _, err := os.Stat(filepath.Join(dir, "blocks.json")); err == nil {
			c, err := catalogs.Load(dir)
			if err != nil {
				logger.Fatalf("load catalogs: %v", err)
			}
			cats = c
		}
	}

	sp := configPath(*settingsPath, *configDir, "settings.yaml")
	settings, err := tuning.Load(sp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load settings: %v", err)
		}
		logger.Printf("settings not found (%s); using defaults", sp)
		settings = tuning.Defaults()
	}

	wp := configPath(*worldPath, *configDir, "world.yaml")
	worldOpts, err := gridworld.LoadOptions(wp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load world: %v", err)
		}
		logger.Printf("world config not found (%s); using defaults", wp)
		worldOpts = gridworld.DefaultOptions()
	}
	w, err := gridworld.New(cats, worldOpts)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	agentDir := filepath.Join(*dataDir, "agents", settings.AgentID)
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}
	snapPath := filepath.Join(agentDir, "world.snap.zst")
	restored := false
	if *useSnapshot {
		snap, err := snapshot.ReadSnapshot(snapPath)
		switch {
		case err == nil:
			if err := w.ImportSnapshot(snap); err != nil {
				logger.Fatalf("restore %s: %v", snapPath, err)
			}
			restored = true
			logger.Printf("restored world saved %s (%d chunks, digest %.12s)", snap.Header.SavedAt.Format(time.RFC3339), len(snap.Chunks), snap.Header.Digest)
		case errors.Is(err, os.ErrNotExist):
		default:
			logger.Fatalf("read snapshot: %v", err)
		}
	}
	if *placeChests && !restored {
		for _, cat := range sortedKeys(settings.Deposit.Chests) {
			c := settings.Deposit.Chests[cat]
			if err := w.SetBlock(c, "chest"); err != nil {
				logger.Printf("chest %s at %v: %v", cat, c, err)
			}
		}
	}

	mirror, err := buildMirror(*dataDir)
	if err != nil {
		logger.Fatalf("mirror: %v", err)
	}
	defer mirror.Close()

	jr := journal.New(agentDir)
	defer jr.Close()
	if mirror != nil {
		jr.OnSegmentClosed(mirror.Enqueue)
	}

	saveWorld := func() (snapshot.WorldV1, error) {
		snap := w.ExportSnapshot(settings.AgentID)
		if err := snapshot.WriteSnapshot(snapPath, snap); err != nil {
			return snap, err
		}
		mirror.Enqueue(snapPath)
		if *archiveKeep > 0 {
			if _, err := archive.ArchiveSnapshot(agentDir, snapPath, snap, *archiveKeep); err != nil {
				logger.Printf("archive snapshot: %v", err)
			}
		}
		return snap, nil
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(agentDir, "index", "sessions.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertConfig(settings, cats); err != nil {
			logger.Printf("index: upsert config: %v", err)
		}
	}

	roster := []string{settings.AgentID}
	if t := strings.TrimSpace(*team); t != "" {
		roster = strings.Split(t, ",")
	}
	co := coord.New(roster...)
	co.Join(settings.AgentID)

	cfg := miner.Config{
		Settings:    settings,
		Catalogs:    cats,
		World:       w,
		Navigator:   w,
		Tools:       w,
		Coordinator: co,
		Collector:   w,
		Logger:      log.New(os.Stdout, "[miner] ", log.LstdFlags|log.Lmicroseconds),
		Journal:     jr,
	}
	if idx != nil {
		cfg.Index = idx
	}
	eng, err := miner.New(cfg)
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}

	sec := strings.TrimSpace(*secret)
	if sec == "" {
		sec = strings.TrimSpace(os.Getenv("MINERD_SECRET"))
	}
	br, err := bridge.NewServer(bridge.Config{
		Miner:   eng,
		Locator: w,
		Secret:  sec,
		Logger:  log.New(os.Stdout, "[bridge] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		logger.Fatalf("bridge: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/bridge", br.Handler())
	mux.HandleFunc("/v1/status", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, eng.Status())
	})
	mux.HandleFunc("/v1/mirror", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, mirror.Stats())
	})
	mux.HandleFunc("/v1/sessions", func(rw http.ResponseWriter, r *http.Request) {
		if idx == nil {
			http.Error(rw, "index disabled", http.StatusNotFound)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		rows, err := idx.Sessions(r.Context(), r.URL.Query().Get("agent"), limit)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(rw, rows)
	})

	mux.HandleFunc("/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !*useSnapshot {
			http.Error(rw, "snapshots disabled", http.StatusNotFound)
			return
		}
		snap, err := saveWorld()
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(rw, map[string]any{"path": snapPath, "chunks": len(snap.Chunks), "digest": snap.Header.Digest})
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("listening on %s (agent=%s team=%v)", *addr, settings.AgentID, roster)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Printf("shutting down")
		br.Close()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	if err := g.Wait(); err != nil {
		logger.Printf("minerd: %v", err)
	}
	if *useSnapshot {
		if _, err := saveWorld(); err != nil {
			logger.Printf("save snapshot: %v", err)
		} else {
			logger.Printf("world saved to %s", snapPath)
		}
	}
	if idx != nil {
		if n := idx.Dropped(); n > 0 {
			logger.Printf("index dropped %d session rows", n)
		}
	}
	logger.Printf("journal wrote %d events", jr.Lines())
}

// buildMirror returns nil unless MINERD_R2_MIRROR is set.
func buildMirror(dataDir string) (*r2s3.Mirror, error) {
	if on, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv("MINERD_R2_MIRROR"))); !on {
		return nil, nil
	}
	client, err := r2s3.New(r2s3.Config{
		Endpoint:        os.Getenv("MINERD_R2_ENDPOINT"),
		Bucket:          os.Getenv("MINERD_R2_BUCKET"),
		Region:          os.Getenv("MINERD_R2_REGION"),
		AccessKeyID:     os.Getenv("MINERD_R2_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("MINERD_R2_SECRET_ACCESS_KEY"),
	})
	if err != nil {
		return nil, fmt.Errorf("MINERD_R2_MIRROR is set: %w", err)
	}
	workers, _ := strconv.Atoi(os.Getenv("MINERD_R2_UPLOAD_WORKERS"))
	return r2s3.NewMirror(client, dataDir, os.Getenv("MINERD_R2_PREFIX"),
		workers, log.New(os.Stdout, "[mirror] ", log.LstdFlags|log.Lmicroseconds)), nil
}

func configPath(flagValue, configDir, name string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, name)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
