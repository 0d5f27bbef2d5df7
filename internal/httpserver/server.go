package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/threatlens/threatlens/internal/ingest"
	"github.com/threatlens/threatlens/internal/model"
)

// FileIngestor accepts an uploaded log file for parsing and analysis.
type FileIngestor interface {
	ProcessFile(ctx context.Context, filename, content string) (*ingest.FileReport, error)
}

// Server provides the HTTP API for ingesting log files and querying
// analyzed entries.
type Server struct {
	addr      string
	store     model.EntryReader
	ingestor  FileIngestor
	server    *http.Server
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, store model.EntryReader, ingestor FileIngestor) *Server {
	if addr == "" {
		addr = "0.0.0.0:3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:     addr,
		store:    store,
		ingestor: ingestor,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Router builds the gin handler. Exposed for tests.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.POST("/api/ingest", s.handleIngest)
	r.GET("/api/entries", s.handleEntries)
	r.GET("/api/summary", s.handleSummary)
	r.GET("/api/schema", s.handleSchema)
	r.POST("/api/query", s.handleQuery)

	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Handler:           s.Router(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the bound listen address, useful when the configured port
// is 0.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	entryCount, err := s.store.TotalEntryCount()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"uptime":      time.Since(s.startTime).String(),
		"entry_count": entryCount,
	})
}

func (s *Server) handleIngest(c *gin.Context) {
	var req struct {
		Filename string `json:"filename"`
		Content  string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing content field"})
		return
	}
	if req.Filename == "" {
		req.Filename = "upload.log"
	}

	report, err := s.ingestor.ProcessFile(c.Request.Context(), req.Filename, req.Content)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	statusCounts := make(map[string]int)
	for _, e := range report.Entries {
		statusCounts[string(e.Analysis.Status)]++
	}

	c.JSON(http.StatusOK, gin.H{
		"filename":         report.Filename,
		"format":           report.Format,
		"total_lines":      report.TotalLines,
		"skipped_lines":    report.Skipped,
		"entry_count":      len(report.Entries),
		"counts_by_status": statusCounts,
		"summary":          report.Summary,
		"entries":          report.Entries,
	})
}

func (s *Server) handleEntries(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer in [1, 1000]"})
			return
		}
		limit = parsed
	}

	statuses := splitParam(c.Query("status"))
	levels := splitParam(c.Query("threat_level"))
	pattern := c.Query("pattern")

	entries, err := s.store.RecentEntriesFiltered(limit, statuses, levels, pattern)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleSummary(c *gin.Context) {
	total, err := s.store.TotalEntryCount()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read entry count"})
		return
	}
	byStatus, err := s.store.CountsByStatus()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read status counts"})
		return
	}
	byLevel, err := s.store.CountsByThreatLevel()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read threat level counts"})
		return
	}
	byFormat, err := s.store.CountsByFormat()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read format counts"})
		return
	}
	topIPs, err := s.store.TopSourceIPs(10)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read top source addresses"})
		return
	}
	earliest, latest, err := s.store.TimeRange()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read time range"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_entries":          total,
		"counts_by_status":       byStatus,
		"counts_by_threat_level": byLevel,
		"counts_by_format":       byFormat,
		"top_source_ips":         topIPs,
		"earliest_time":          earliest,
		"latest_time":            latest,
	})
}

func (s *Server) handleSchema(c *gin.Context) {
	description := s.store.GetSchemaDescription()

	tables, err := s.store.ExecuteQuery(
		"SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = 'main' ORDER BY table_name, ordinal_position",
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read schema metadata"})
		return
	}

	schema := make(map[string][]map[string]string)
	for _, row := range tables {
		tableName := fmt.Sprintf("%v", row["table_name"])
		schema[tableName] = append(schema[tableName], map[string]string{
			"column": fmt.Sprintf("%v", row["column_name"]),
			"type":   fmt.Sprintf("%v", row["data_type"]),
		})
	}

	counts, err := s.store.TableRowCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read table row counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"description": description,
		"tables":      schema,
		"row_counts":  counts,
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req struct {
		SQL string `json:"sql" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sql field"})
		return
	}

	results, err := s.store.ExecuteQuery(req.SQL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var columns []string
	if len(results) > 0 {
		for col := range results[0] {
			columns = append(columns, col)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"columns":   columns,
		"rows":      results,
		"row_count": len(results),
	})
}

// splitParam splits a comma-separated query parameter into values.
func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
