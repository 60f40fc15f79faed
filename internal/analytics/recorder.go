package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"linkshort/internal/domain"
	"linkshort/internal/metrics"
)

// ClicksWriter — персистентность событий. Пишут только воркеры,
// путь редиректа хранилища не касается.
type ClicksWriter interface {
	BatchInsert(ctx context.Context, events []domain.ClickEvent) error
	UpsertStats(ctx context.Context, linkID string, clicks int64, lastClickedAt time.Time) error
}

const (
	insertAttempts = 3
	insertBackoff  = 100 * time.Millisecond
)

// Recorder — ограниченная очередь кликов с пулом воркеров. Submit никогда
// не блокируется: при полной очереди событие сбрасывается и считается в
// метрике. Воркеры копят батчи и сбрасывают их по размеру или интервалу.
type Recorder struct {
	repo       ClicksWriter
	queue      chan domain.ClickEvent
	workers    int
	flushSize  int
	flushEvery time.Duration
	log        zerolog.Logger

	wg   sync.WaitGroup
	quit chan struct{}
	once sync.Once
}

func NewRecorder(repo ClicksWriter, workers, queueSize, flushSize int, flushEvery time.Duration, log zerolog.Logger) *Recorder {
	if workers <= 0 {
		workers = 1
	}
	if flushSize <= 0 {
		flushSize = 100
	}
	if flushEvery <= 0 {
		flushEvery = 2 * time.Second
	}

	return &Recorder{
		repo:       repo,
		queue:      make(chan domain.ClickEvent, queueSize),
		workers:    workers,
		flushSize:  flushSize,
		flushEvery: flushEvery,
		log:        log.With().Str("component", "click-recorder").Logger(),
		quit:       make(chan struct{}),
	}
}

func (r *Recorder) Start() {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Submit — неблокирующая постановка события. false — очередь полна,
// событие потеряно; вызывающему делать с этим нечего, редирект уже ушёл.
func (r *Recorder) Submit(event domain.ClickEvent) bool {
	select {
	case r.queue <- event:
		metrics.ClicksRecorded.Inc()
		return true
	default:
		metrics.ClicksDropped.Inc()
		return false
	}
}

// Stop останавливает приём, допивает очередь и сбрасывает хвосты батчей.
func (r *Recorder) Stop() {
	r.once.Do(func() { close(r.quit) })
	r.wg.Wait()
}

func (r *Recorder) worker(id int) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.flushEvery)
	defer ticker.Stop()

	batch := make([]domain.ClickEvent, 0, r.flushSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.flush(id, batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-r.quit:
			// Допиваем то, что уже в очереди, и уходим
			for {
				select {
				case ev := <-r.queue:
					batch = append(batch, ev)
					if len(batch) >= r.flushSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case ev := <-r.queue:
			batch = append(batch, ev)
			if len(batch) >= r.flushSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// flush пишет батч и двигает роллапы. Ретрай только на транзиентные
// ошибки записи; сам батч не может быть "malformed" — события строит
// резолвер, а не внешний ввод.
func (r *Recorder) flush(workerID int, batch []domain.ClickEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	for attempt := 0; attempt < insertAttempts; attempt++ {
		if err = r.repo.BatchInsert(ctx, batch); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(insertBackoff << attempt):
			continue
		}
		break
	}
	if err != nil {
		metrics.ClickBatchFailures.Inc()
		r.log.Error().Err(err).
			Int("worker", workerID).
			Int("batch_size", len(batch)).
			Msg("failed to insert click batch")
		return
	}

	for linkID, agg := range aggregateBatch(batch) {
		if err := r.repo.UpsertStats(ctx, linkID, agg.clicks, agg.last); err != nil {
			r.log.Error().Err(err).
				Int("worker", workerID).
				Str("link_id", linkID).
				Msg("failed to update link stats")
		}
	}
}

type batchAgg struct {
	clicks int64
	last   time.Time
}

func aggregateBatch(batch []domain.ClickEvent) map[string]batchAgg {
	out := make(map[string]batchAgg)
	for _, ev := range batch {
		agg := out[ev.LinkID]
		agg.clicks++
		if ev.ClickedAt.After(agg.last) {
			agg.last = ev.ClickedAt
		}
		out[ev.LinkID] = agg
	}
	return out
}
