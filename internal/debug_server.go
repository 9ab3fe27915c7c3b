package internal

import (
	"chat-notify/contract"
	"chat-notify/domain"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const defaultInspectPrefix = "notify:"

type InspectRow struct {
	Key       string `json:"key"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	EntityID  string `json:"entity_id"`
	Scope     string `json:"scope"`
	Detail    string `json:"detail"`
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() any

// SessionLister is satisfied by the session registry.
type SessionLister interface {
	Snapshot() map[domain.UserID][]contract.EventSink
}

// DebugServer serves read-only views of the running bridge.
// The Badger inspector is only mounted in embedded mode.
type DebugServer struct {
	log      *slog.Logger
	port     int
	sessions SessionLister
	stats    StatsProvider
	db       *badger.DB
	mapper   RowMapper
}

func NewDebugServer(log *slog.Logger, port int, sessions SessionLister, stats StatsProvider) *DebugServer {
	return &DebugServer{log: log, port: port, sessions: sessions, stats: stats, mapper: DefaultMapper}
}

func (d *DebugServer) WithBadger(db *badger.DB, mapper RowMapper) *DebugServer {
	d.db = db
	if mapper != nil {
		d.mapper = mapper
	}
	return d
}

func (d *DebugServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /debug/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, d.stats())
	})
	mux.HandleFunc("GET /debug/sessions", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, d.sessionInfos())
	})
	if d.db != nil {
		mux.HandleFunc("GET /debug/inspect", d.inspect)
	}
	return mux
}

// Run serves until ctx is cancelled.
func (d *DebugServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", d.port),
		Handler:           d.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errChan := make(chan error, 1)
	go func() {
		d.log.Info("Starting debug server", "port", d.port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

func (d *DebugServer) sessionInfos() []domain.SessionInfo {
	var infos []domain.SessionInfo
	for _, sinks := range d.sessions.Snapshot() {
		for _, sink := range sinks {
			if s, ok := sink.(interface{ Info() domain.SessionInfo }); ok {
				infos = append(infos, s.Info())
			}
		}
	}
	slices.SortFunc(infos, func(a, b domain.SessionInfo) int {
		if c := cmp.Compare(a.UserID, b.UserID); c != 0 {
			return c
		}
		return a.ConnectedAt.Compare(b.ConnectedAt)
	})
	return infos
}

func (d *DebugServer) inspect(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = defaultInspectPrefix
	}
	rows, err := Scan(d.db, prefix, d.mapper)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

// Scan maps every key under prefix.
func Scan(db *badger.DB, prefix string, mapper RowMapper) ([]InspectRow, error) {
	if mapper == nil {
		mapper = DefaultMapper
	}
	rows := []InspectRow{}
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				rows = append(rows, mapper(string(item.Key()), val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return rows, err
}

// DefaultMapper understands "{type}:{scope}:{timestamp}:{id}" keys,
// which covers both outbox notifications and messages.
func DefaultMapper(key string, val []byte) InspectRow {
	parts := strings.Split(key, ":")
	row := InspectRow{
		Key:       key,
		Type:      strings.ToUpper(parts[0]),
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Scope:     "-",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	switch {
	case len(parts) >= 4:
		row.Scope = parts[1]
		if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			row.Timestamp = time.Unix(0, tsNano).UTC().Format("15:04:05")
		}
		row.EntityID = entityID(parts[3])
		if len(row.EntityID) > 8 {
			row.EntityID = row.EntityID[:8]
		}
	case len(parts) == 2:
		row.EntityID = entityID(parts[1])
	}
	return row
}

// entityID drops the zero padding of numeric ids.
func entityID(s string) string {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return s
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
