package duckdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/threatlens/threatlens/internal/journal"
	"github.com/threatlens/threatlens/internal/model"
)

// DefaultFlushQueueSize is the number of batches that can be queued for
// async flushing.
const DefaultFlushQueueSize = 64

var entryIDCounter atomic.Uint64

type journaledEntry struct {
	seq   uint64
	entry *model.AnalyzedEntry
}

type durableJournal interface {
	Append(entry *model.AnalyzedEntry) (uint64, error)
	Commit(seq uint64) error
	Close() error
}

// InsertBuffer batches analyzed entries and flushes them to DuckDB
// asynchronously. Add() never blocks on DuckDB writes; entries are handed
// to a flush goroutine.
type InsertBuffer struct {
	writer        model.EntryWriter
	mu            sync.Mutex
	pending       []journaledEntry
	flushChan     chan []journaledEntry
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup // separate WaitGroup for tickLoop
	stopOnce      sync.Once
	journal       durableJournal

	// backpressureCount tracks inline flushes for throttled logging.
	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64 // unix timestamp of last backpressure log
}

// InsertBufferConfig holds tunable parameters for the insert buffer.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
	Journal        *journal.Journal
}

// NewInsertBuffer creates an insert buffer that flushes to writer. The
// flush goroutine processes batches asynchronously so Add() never blocks
// on IO.
func NewInsertBuffer(writer model.EntryWriter, conf ...InsertBufferConfig) *InsertBuffer {
	batchSize := 2000
	flushInterval := 100 * time.Millisecond
	flushQueueSize := DefaultFlushQueueSize
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].FlushInterval > 0 {
			flushInterval = conf[0].FlushInterval
		}
		if conf[0].FlushQueueSize > 0 {
			flushQueueSize = conf[0].FlushQueueSize
		}
	}

	b := &InsertBuffer{
		writer:        writer,
		pending:       make([]journaledEntry, 0, batchSize),
		flushChan:     make(chan []journaledEntry, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}
	if len(conf) > 0 && conf[0].Journal != nil {
		b.journal = conf[0].Journal
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

// tickLoop periodically drains the pending buffer.
func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending() // final drain
			return
		}
	}
}

// logBackpressure emits a throttled warning (at most once per 10 seconds)
// when the flush channel is full and an inline flush is triggered.
func (b *InsertBuffer) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		log.Printf("duckdb: backpressure, %d inline flushes (flush channel full, DuckDB falling behind)", count)
	}
}

// drainPending moves pending entries to the flush channel without blocking
// on DuckDB.
func (b *InsertBuffer) drainPending() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make([]journaledEntry, 0, b.maxBatch)
	b.mu.Unlock()

	// Non-blocking send. A full channel means DuckDB is falling behind;
	// flush inline as a safety valve.
	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		if err := b.flushBatch(batch); err != nil {
			log.Printf("duckdb flush error (inline): %v", err)
		}
	}
}

// flushWorker processes batches from the flush channel.
func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		if err := b.flushBatch(batch); err != nil {
			log.Printf("duckdb flush error: %v", err)
		}
	}
}

// Add queues an analyzed entry for batch insertion. This never blocks on
// DuckDB IO.
func (b *InsertBuffer) Add(entry *model.AnalyzedEntry) {
	if entry.EntryID == "" {
		entry.EntryID = nextEntryID()
	}

	seq := uint64(0)
	if b.journal != nil {
		for {
			var err error
			seq, err = b.journal.Append(entry)
			if err == nil {
				break
			}
			log.Printf("duckdb: journal append failed, retrying: %v", err)
			select {
			case <-b.done:
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
	}

	b.mu.Lock()
	b.pending = append(b.pending, journaledEntry{seq: seq, entry: entry})
	shouldFlush := len(b.pending) >= b.maxBatch
	var batch []journaledEntry
	if shouldFlush {
		batch = b.pending
		b.pending = make([]journaledEntry, 0, b.maxBatch)
	}
	b.mu.Unlock()

	if shouldFlush {
		select {
		case b.flushChan <- batch:
		default:
			// Inline flush instead of spawning unbounded goroutines under
			// sustained overload.
			b.logBackpressure()
			if err := b.flushBatch(batch); err != nil {
				log.Printf("duckdb flush error (overflow-inline): %v", err)
			}
		}
	}
}

// Stop flushes remaining entries and waits for all writes to complete.
func (b *InsertBuffer) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		// Wait for tickLoop's final drain before closing flushChan so every
		// pending entry reaches the flush channel.
		b.tickWg.Wait()
		close(b.flushChan)
		b.wg.Wait()
		if b.journal != nil {
			if err := b.journal.Close(); err != nil {
				log.Printf("duckdb: journal close error: %v", err)
			}
		}
	})
}

func (b *InsertBuffer) flushBatch(batch []journaledEntry) error {
	if len(batch) == 0 {
		return nil
	}

	entries := make([]*model.AnalyzedEntry, 0, len(batch))
	for _, item := range batch {
		entries = append(entries, item.entry)
	}

	if err := b.writer.InsertEntryBatch(entries); err != nil {
		return err
	}

	if b.journal != nil {
		maxSeq := uint64(0)
		for _, item := range batch {
			if item.seq > maxSeq {
				maxSeq = item.seq
			}
		}
		if maxSeq > 0 {
			if err := b.journal.Commit(maxSeq); err != nil {
				return fmt.Errorf("journal commit seq=%d: %w", maxSeq, err)
			}
		}
	}
	return nil
}

// InsertEntryBatch appends a batch of analyzed entries into DuckDB in a
// single transaction. If the batch fails, it is retried entry-by-entry to
// salvage as many entries as possible.
func (s *Store) InsertEntryBatch(entries []*model.AnalyzedEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.insertBatchTx(ctx, entries)
	if err == nil {
		return nil
	}

	var failed int
	for _, e := range entries {
		if rerr := s.insertBatchTx(ctx, []*model.AnalyzedEntry{e}); rerr != nil {
			failed++
			log.Printf("duckdb: dropping entry (ip=%s desc=%.80s): %v", e.IPAddress, e.EventDescription, rerr)
		}
	}
	if failed > 0 {
		log.Printf("duckdb: batch partially failed, %d/%d entries dropped", failed, len(entries))
	}
	return nil
}

// insertBatchTx inserts entries in a single transaction.
func (s *Store) insertBatchTx(ctx context.Context, entries []*model.AnalyzedEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entries
		(entry_id, timestamp, log_format, ip_address, description, raw_line,
		 status_code, hostname, service, attributes, source,
		 status, confidence, threat_level, explanation, recommended_action, tier)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		attrsJSON := []byte("{}")
		if len(e.Attributes) > 0 {
			if data, merr := json.Marshal(e.Attributes); merr != nil {
				log.Printf("duckdb: failed to marshal attributes, using empty: %v", merr)
			} else {
				attrsJSON = data
			}
		}

		entryID := e.EntryID
		if entryID == "" {
			entryID = nextEntryID()
		}

		if _, err := stmt.ExecContext(
			ctx,
			entryID, e.Timestamp, string(e.LogType), e.IPAddress,
			e.EventDescription, e.RawLogLine, e.StatusCode,
			e.Hostname, e.Service, string(attrsJSON), e.Source,
			string(e.Analysis.Status), e.Analysis.Confidence,
			string(e.Analysis.ThreatLevel), e.Analysis.Explanation,
			e.Analysis.RecommendedAction, e.Analysis.Tier,
		); err != nil {
			return fmt.Errorf("entry insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func nextEntryID() string {
	n := entryIDCounter.Add(1)
	return fmt.Sprintf("%x-%x", time.Now().UTC().UnixNano(), n)
}
