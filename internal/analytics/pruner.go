package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type ClicksPruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

const pruneTimeout = time.Minute

// Pruner периодически удаляет сырые клики старше окна ретенции. Роллапы
// link_stats не трогает: тоталы переживают удаление сырья.
type Pruner struct {
	repo      ClicksPruner
	retention time.Duration
	every     time.Duration
	log       zerolog.Logger

	quit chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewPruner создаёт прунер с окном ретенции. retention <= 0 выключает
// удаление полностью: Start становится no-op.
func NewPruner(repo ClicksPruner, retention, every time.Duration, log zerolog.Logger) *Pruner {
	return &Pruner{
		repo:      repo,
		retention: retention,
		every:     every,
		log:       log.With().Str("component", "click_pruner").Logger(),
		quit:      make(chan struct{}),
	}
}

func (p *Pruner) Start() {
	if p.retention <= 0 {
		p.log.Info().Msg("click retention disabled, raw events are kept forever")
		return
	}

	p.wg.Add(1)
	go p.run()
}

func (p *Pruner) Stop() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

func (p *Pruner) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.every)
	defer ticker.Stop()

	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
			p.prune()
		}
	}
}

func (p *Pruner) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	cutoff := time.Now().Add(-p.retention)
	deleted, err := p.repo.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.log.Error().Err(err).Time("cutoff", cutoff).Msg("failed to prune click events")
		return
	}

	if deleted > 0 {
		p.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("pruned click events")
	}
}
