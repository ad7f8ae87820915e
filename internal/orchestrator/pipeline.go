package orchestrator

import (
	"context"
	"sync"

	"github.com/OldStager01/resilience-plane/internal/logger"
)

// Loop is one long-running component. Run must return once ctx is done.
type Loop struct {
	Name string
	Run  func(ctx context.Context)
}

// Pipeline runs a fixed set of loops under one cancellable context.
type Pipeline struct {
	loops   []Loop
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewPipeline(loops ...Loop) *Pipeline {
	return &Pipeline{loops: loops}
}

func (p *Pipeline) Start(parent context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	p.running = true

	for _, loop := range p.loops {
		p.wg.Add(1)
		go p.run(ctx, loop)
	}

	logger.WithComponent("orchestrator").Infof("Pipeline started (%d loops)", len(p.loops))
}

func (p *Pipeline) run(ctx context.Context, loop Loop) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("orchestrator").WithField("loop", loop.Name).Errorf("Loop panicked: %v", r)
		}
	}()
	loop.Run(ctx)
}

// Stop cancels every loop and waits for them to return.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	logger.WithComponent("orchestrator").Info("Pipeline stopped")
}

func (p *Pipeline) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pipeline) Names() []string {
	names := make([]string, len(p.loops))
	for i, l := range p.loops {
		names[i] = l.Name
	}
	return names
}
