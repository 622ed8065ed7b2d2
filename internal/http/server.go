package http

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/route-beacon/ecom-indexer/internal/ecommunity"
	"github.com/route-beacon/ecom-indexer/internal/indexer"
	"go.uber.org/zap"
)

// ConsumerStatus is an interface for checking Kafka consumer join state.
type ConsumerStatus interface {
	IsJoined() bool
}

// DBChecker abstracts the database health check for testability.
type DBChecker interface {
	Ping(ctx context.Context) error
}

// PoolStats exposes intern pool counters for the stats endpoint.
type PoolStats interface {
	Len() int
	Hits() uint64
}

type Server struct {
	srv       *http.Server
	pool      *pgxpool.Pool
	dbChecker DBChecker
	consumer  ConsumerStatus
	intern    PoolStats
	logger    *zap.Logger
}

func NewServer(addr string, pool *pgxpool.Pool, consumer ConsumerStatus, intern PoolStats, logger *zap.Logger) *Server {
	s := &Server{
		pool:     pool,
		consumer: consumer,
		intern:   intern,
		logger:   logger,
	}
	if pool != nil {
		s.dbChecker = pool
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/sets", s.handleSets)
	mux.HandleFunc("/api/v1/pool", s.handlePool)

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	allOK := true

	// Check PostgreSQL.
	if s.dbChecker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.dbChecker.Ping(ctx); err != nil {
			checks["postgres"] = "error"
			allOK = false
		} else {
			checks["postgres"] = "ok"
		}
	} else {
		checks["postgres"] = "error"
		allOK = false
	}

	// Check Kafka consumer.
	if s.consumer != nil && s.consumer.IsJoined() {
		checks["kafka"] = "ok"
	} else {
		checks["kafka"] = "not_joined"
		allOK = false
	}

	w.Header().Set("Content-Type", "application/json")
	status := "ready"
	httpStatus := http.StatusOK
	if !allOK {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}

type setResponse struct {
	SetID       string    `json:"set_id"`
	ContentHash string    `json:"content_hash,omitempty"`
	Display     string    `json:"display"`
	ValueCount  int       `json:"value_count"`
	RouteCount  int64     `json:"route_count,omitempty"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// contentHash renders the canonical 64-bit content hash used for sharding
// and sorted containers.
func contentHash(s *ecommunity.Set) string {
	return fmt.Sprintf("%016x", s.Hash())
}

// handleSets serves community set lookups.
//
//	GET /api/v1/sets?limit=N              top sets by route count
//	GET /api/v1/sets?set=rt 65000:100     exact lookup by canonical content
//	GET /api/v1/sets?contains=rt 65000:1  sets containing one value
func (s *Server) handleSets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.pool == nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()

	if text := q.Get("set"); text != "" {
		s.lookupExact(w, r, text)
		return
	}
	if text := q.Get("contains"); text != "" {
		s.lookupContaining(w, r, text)
		return
	}

	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	rows, err := s.pool.Query(r.Context(), `
		SELECT cs.set_id, cs.display, cs.value_count, count(rc.set_id) AS route_count,
			cs.first_seen, cs.last_seen
		FROM community_sets cs
		LEFT JOIN route_communities rc ON rc.set_id = cs.set_id
		GROUP BY cs.set_id, cs.display, cs.value_count, cs.first_seen, cs.last_seen
		ORDER BY route_count DESC, cs.last_seen DESC LIMIT $1`, limit)
	if err != nil {
		s.logger.Error("sets query failed", zap.Error(err))
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	results := []setResponse{}
	for rows.Next() {
		var id []byte
		var resp setResponse
		if err := rows.Scan(&id, &resp.Display, &resp.ValueCount, &resp.RouteCount, &resp.FirstSeen, &resp.LastSeen); err != nil {
			http.Error(w, "scan failed", http.StatusInternalServerError)
			return
		}
		resp.SetID = hex.EncodeToString(id)
		results = append(results, resp)
	}

	writeJSON(w, http.StatusOK, map[string]any{"sets": results})
}

// lookupExact parses the community text, canonicalizes it, and fetches the
// matching row by content hash.
func (s *Server) lookupExact(w http.ResponseWriter, r *http.Request, text string) {
	set, err := parseCommunityText(text)
	if err != nil {
		http.Error(w, "malformed community string", http.StatusBadRequest)
		return
	}

	canon := set.UniqSort()
	setID := indexer.ComputeSetID(canon.Bytes())

	var resp setResponse
	var id []byte
	err = s.pool.QueryRow(r.Context(), `
		SELECT set_id, display, value_count, first_seen, last_seen
		FROM community_sets WHERE set_id = $1`, setID,
	).Scan(&id, &resp.Display, &resp.ValueCount, &resp.FirstSeen, &resp.LastSeen)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	resp.SetID = hex.EncodeToString(id)
	resp.ContentHash = contentHash(canon)

	writeJSON(w, http.StatusOK, resp)
}

// lookupContaining returns sets that carry every value of the query set.
// Candidate filtering happens in SQL on the raw octets; the aligned subset
// check happens here.
func (s *Server) lookupContaining(w http.ResponseWriter, r *http.Request, text string) {
	query, err := parseCommunityText(text)
	if err != nil {
		http.Error(w, "malformed community string", http.StatusBadRequest)
		return
	}
	if query.Size() == 0 {
		http.Error(w, "empty community string", http.StatusBadRequest)
		return
	}

	// First value narrows the scan; POSITION is byte-oriented so alignment
	// is verified with Match below.
	first := query.At(0)
	rows, err := s.pool.Query(r.Context(), `
		SELECT set_id, octets, display, value_count, first_seen, last_seen
		FROM community_sets WHERE position($1 in octets) > 0
		ORDER BY last_seen DESC LIMIT 1000`, first[:])
	if err != nil {
		s.logger.Error("contains query failed", zap.Error(err))
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	results := []setResponse{}
	for rows.Next() {
		var id, octets []byte
		var resp setResponse
		if err := rows.Scan(&id, &octets, &resp.Display, &resp.ValueCount, &resp.FirstSeen, &resp.LastSeen); err != nil {
			http.Error(w, "scan failed", http.StatusInternalServerError)
			return
		}
		stored, err := ecommunity.Parse(octets)
		if err != nil || !stored.Match(query) {
			continue
		}
		resp.SetID = hex.EncodeToString(id)
		resp.ContentHash = contentHash(stored)
		results = append(results, resp)
	}

	writeJSON(w, http.StatusOK, map[string]any{"sets": results})
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.intern == nil {
		http.Error(w, "pool unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"size": s.intern.Len(),
		"hits": s.intern.Hits(),
	})
}

// parseCommunityText accepts keyworded route-map syntax ("rt 65000:100"),
// the display form ("RT:65000:100"), and bare target lists ("65000:100").
func parseCommunityText(text string) (*ecommunity.Set, error) {
	set, err := ecommunity.ParseString(text, ecommunity.FormatRouteMap, true)
	if err == nil {
		return set, nil
	}
	if set, err = ecommunity.ParseString(text, ecommunity.FormatDisplay, false); err == nil {
		return set, nil
	}
	return ecommunity.ParseString(text, ecommunity.FormatCommunityList, false)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
