package main

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/threatlens/threatlens/internal/model"
)

// DefaultMuxBuffer is the default channel buffer size for the source multiplexer.
const DefaultMuxBuffer = 50_000

// SourceMultiplexer merges multiple log sources into a single read-only
// envelope stream. Blank lines are filtered at the merge point so
// downstream processors only see work.
type SourceMultiplexer struct {
	ctx    context.Context
	cancel context.CancelFunc

	sources   []NamedLogSource
	out       chan model.IngestEnvelope
	forwarded atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewSourceMultiplexer(parent context.Context, sources []NamedLogSource, buffer int) *SourceMultiplexer {
	if buffer <= 0 {
		buffer = DefaultMuxBuffer
	}
	ctx, cancel := context.WithCancel(parent)
	return &SourceMultiplexer{
		ctx:     ctx,
		cancel:  cancel,
		sources: sources,
		out:     make(chan model.IngestEnvelope, buffer),
	}
}

// Start launches one forwarding goroutine per source. The output channel
// closes once every source channel has closed.
func (m *SourceMultiplexer) Start() {
	m.startOnce.Do(func() {
		if len(m.sources) == 0 {
			m.closeOutput()
			return
		}

		m.wg.Add(len(m.sources))
		for _, src := range m.sources {
			go m.forward(src)
		}

		go func() {
			m.wg.Wait()
			m.closeOutput()
		}()
	})
}

// Stop cancels forwarding, stops every source, and closes the output.
func (m *SourceMultiplexer) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		for _, src := range m.sources {
			src.Stop()
		}
		m.wg.Wait()
		m.closeOutput()
		if n := m.forwarded.Load(); n > 0 {
			log.Printf("mux: forwarded %d lines from %d sources", n, len(m.sources))
		}
	})
}

func (m *SourceMultiplexer) HasSources() bool {
	return len(m.sources) > 0
}

// PrimarySourceName names the first configured source, used as the default
// tag for untagged lines.
func (m *SourceMultiplexer) PrimarySourceName() string {
	if len(m.sources) == 0 {
		return ""
	}
	return m.sources[0].Name()
}

func (m *SourceMultiplexer) Lines() <-chan model.IngestEnvelope {
	return m.out
}

func (m *SourceMultiplexer) forward(src NamedLogSource) {
	defer m.wg.Done()

	in := src.Lines()
	for {
		select {
		case <-m.ctx.Done():
			return
		case env, ok := <-in:
			if !ok {
				return
			}
			if env.Line == "" {
				continue
			}
			select {
			case m.out <- env:
				m.forwarded.Add(1)
			case <-m.ctx.Done():
				return
			}
		}
	}
}

func (m *SourceMultiplexer) closeOutput() {
	m.closeOnce.Do(func() {
		close(m.out)
	})
}
