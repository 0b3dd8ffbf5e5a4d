package journal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kasuganosora/rtsmicro/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const queueSize = 1024

// Entry is one group decision to be journaled.
type Entry struct {
	TraceID        string
	BotID          *int64
	GameLoop       int
	GroupName      string
	MoveType       string
	Profile        string
	ReadyRatio     float64
	EngageRatio    float64
	CanEngageRatio float64
	UnitCount      int
	EnemiesNearby  int
	Actions        interface{}
	Error          string
	Duration       time.Duration
}

// Journal writes decision logs asynchronously in batches.
type Journal struct {
	db         *gorm.DB
	ch         chan *model.DecisionLog
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	batchSize  int
	flushEvery time.Duration
	logger     *zap.Logger
}

// New creates a Journal and starts its background worker. Non-positive
// batchSize or flush fall back to 100 entries and 2s.
func New(db *gorm.DB, logger *zap.Logger, batchSize int, flush time.Duration) *Journal {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flush <= 0 {
		flush = 2 * time.Second
	}
	j := &Journal{
		db:         db,
		ch:         make(chan *model.DecisionLog, queueSize),
		stopCh:     make(chan struct{}),
		batchSize:  batchSize,
		flushEvery: flush,
		logger:     logger,
	}
	j.wg.Add(1)
	go j.worker()
	return j
}

// Record enqueues an entry. It never blocks: when the queue is full the
// entry is dropped with a warning.
func (j *Journal) Record(e Entry) {
	var actions datatypes.JSON
	if e.Actions != nil {
		if b, err := json.Marshal(e.Actions); err == nil {
			actions = datatypes.JSON(b)
		}
	}
	rec := &model.DecisionLog{
		TraceID:        e.TraceID,
		BotID:          e.BotID,
		GameLoop:       e.GameLoop,
		GroupName:      e.GroupName,
		MoveType:       e.MoveType,
		Profile:        e.Profile,
		ReadyRatio:     e.ReadyRatio,
		EngageRatio:    e.EngageRatio,
		CanEngageRatio: e.CanEngageRatio,
		UnitCount:      e.UnitCount,
		EnemiesNearby:  e.EnemiesNearby,
		Actions:        actions,
		Error:          e.Error,
		DurationUs:     e.Duration.Microseconds(),
	}
	select {
	case j.ch <- rec:
	default:
		j.logger.Warn("journal queue full, dropping entry",
			zap.String("group", e.GroupName), zap.Int("loop", e.GameLoop))
	}
}

// Stop flushes queued entries and waits for the worker to exit.
func (j *Journal) Stop(_ context.Context) {
	j.stopOnce.Do(func() { close(j.stopCh) })
	j.wg.Wait()
}

// Prune deletes decision logs older than the given age and returns the
// number of rows removed.
func (j *Journal) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := j.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.DecisionLog{})
	return res.RowsAffected, res.Error
}

// Recent returns the newest decision logs, optionally filtered by bot.
func (j *Journal) Recent(ctx context.Context, botID *int64, limit int) ([]model.DecisionLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := j.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if botID != nil {
		q = q.Where("bot_id = ?", *botID)
	}
	var logs []model.DecisionLog
	if err := q.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func (j *Journal) worker() {
	defer j.wg.Done()
	ticker := time.NewTicker(j.flushEvery)
	defer ticker.Stop()

	batch := make([]*model.DecisionLog, 0, j.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := j.db.Create(&batch).Error; err != nil {
			j.logger.Error("journal batch write failed",
				zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-j.ch:
			batch = append(batch, rec)
			if len(batch) >= j.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-j.stopCh:
			for {
				select {
				case rec := <-j.ch:
					batch = append(batch, rec)
					if len(batch) >= j.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
