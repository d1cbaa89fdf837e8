package campaign

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"wacrm/internal/metrics"
	"wacrm/internal/models"
)

// Sender delivers one text message through the linked account.
type Sender interface {
	IsConnected() bool
	SendText(ctx context.Context, phone, text string) error
}

// Queue is the campaign state the worker reads and advances.
type Queue interface {
	Active() (*models.Campaign, error)
	NextQueued() (*models.Campaign, error)
	Status(id int64) (models.CampaignStatus, error)
	Start(id int64) (bool, error)
	Complete(id int64) error
	NextPending(campaignID int64) (*models.CampaignMessage, error)
	MarkSending(messageID int64) error
	MarkSent(m *models.CampaignMessage) error
	MarkFailed(m *models.CampaignMessage, reason string) error
	FailInterrupted(campaignID int64) (int, error)
}

type Options struct {
	// A random pause between MinDelay and MaxDelay follows every message.
	MinDelay     time.Duration
	MaxDelay     time.Duration
	PollInterval time.Duration
	SendTimeout  time.Duration
	Logger       *zap.Logger
}

// Progress describes the campaign being sent.
type Progress struct {
	CampaignID int64
	NextSendAt time.Time
	Paused     bool // WhatsApp is disconnected
}

// Worker sends the queued campaigns one at a time, oldest first, one
// message per delay. Only one worker may run per database.
type Worker struct {
	queue  Queue
	sender Sender
	opts   Options
	log    *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	current  *models.Campaign
	nextSend time.Time
	paused   bool
}

func NewWorker(queue Queue, sender Sender, opts Options) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Worker{
		queue:  queue,
		sender: sender,
		opts:   opts,
		log:    opts.Logger.Named("campaign-worker"),
		now:    time.Now,
	}
}

// Run processes the queue until ctx is done. A campaign that was running
// when the server stopped is resumed first.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("campaign worker started",
		zap.Duration("min_delay", w.opts.MinDelay),
		zap.Duration("max_delay", w.opts.MaxDelay))

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("campaign worker stopped")
			return nil
		case <-ticker.C:
			w.step(ctx)
		}
	}
}

// Progress reports the campaign in flight, if any.
func (w *Worker) Progress() (Progress, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.current == nil {
		return Progress{}, false
	}
	return Progress{CampaignID: w.current.ID, NextSendAt: w.nextSend, Paused: w.paused}, true
}

func (w *Worker) step(ctx context.Context) {
	w.mu.RLock()
	current, nextSend := w.current, w.nextSend
	w.mu.RUnlock()

	if current == nil {
		w.pick()
		return
	}
	if w.now().Before(nextSend) {
		return
	}

	status, err := w.queue.Status(current.ID)
	if err != nil {
		w.log.Error("failed to read campaign status", zap.Int64("campaign_id", current.ID), zap.Error(err))
		return
	}
	if status != models.CampaignRunning {
		w.log.Info("campaign stopped", zap.Int64("campaign_id", current.ID), zap.String("status", string(status)))
		metrics.RecordCampaign(string(status))
		w.setCurrent(nil)
		return
	}

	if !w.sender.IsConnected() {
		w.setPaused(current.ID, true)
		return
	}
	w.setPaused(current.ID, false)

	msg, err := w.queue.NextPending(current.ID)
	if err != nil {
		w.log.Error("failed to get next message", zap.Int64("campaign_id", current.ID), zap.Error(err))
		return
	}
	if msg == nil {
		w.complete(current)
		return
	}

	w.send(ctx, msg)
	w.schedule()
}

// pick resumes the running campaign or starts the oldest queued one.
func (w *Worker) pick() {
	active, err := w.queue.Active()
	if err != nil {
		w.log.Error("failed to check for a running campaign", zap.Error(err))
		return
	}
	if active != nil {
		n, err := w.queue.FailInterrupted(active.ID)
		if err != nil {
			w.log.Error("failed to recover campaign", zap.Int64("campaign_id", active.ID), zap.Error(err))
			return
		}
		w.log.Info("resuming campaign", zap.Int64("campaign_id", active.ID), zap.Int("interrupted", n))
		w.setCurrent(active)
		return
	}

	queued, err := w.queue.NextQueued()
	if err != nil {
		w.log.Error("failed to check campaign queue", zap.Error(err))
		return
	}
	if queued == nil {
		return
	}

	started, err := w.queue.Start(queued.ID)
	if err != nil {
		w.log.Error("failed to start campaign", zap.Int64("campaign_id", queued.ID), zap.Error(err))
		return
	}
	if !started {
		return
	}
	metrics.RecordCampaign(string(models.CampaignRunning))
	w.log.Info("campaign started",
		zap.Int64("campaign_id", queued.ID),
		zap.String("draft", queued.DraftTitle),
		zap.String("target", queued.Target),
		zap.Int("messages", queued.TotalCount))
	w.setCurrent(queued)
	w.schedule()
}

func (w *Worker) send(ctx context.Context, msg *models.CampaignMessage) {
	log := w.log.With(zap.Int64("campaign_id", msg.CampaignID), zap.String("phone", msg.Phone))

	if err := w.queue.MarkSending(msg.ID); err != nil {
		log.Error("failed to mark message sending", zap.Error(err))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.opts.SendTimeout)
	err := w.sender.SendText(sendCtx, msg.Phone, msg.Content)
	cancel()

	metrics.RecordCampaignMessage(err == nil)
	if err != nil {
		log.Warn("message failed", zap.Error(err))
		if err := w.queue.MarkFailed(msg, err.Error()); err != nil {
			log.Error("failed to record failed message", zap.Error(err))
		}
		return
	}

	log.Debug("message sent")
	if err := w.queue.MarkSent(msg); err != nil {
		log.Error("failed to record sent message", zap.Error(err))
	}
}

func (w *Worker) complete(c *models.Campaign) {
	if err := w.queue.Complete(c.ID); err != nil {
		w.log.Error("failed to complete campaign", zap.Int64("campaign_id", c.ID), zap.Error(err))
		return
	}
	metrics.RecordCampaign(string(models.CampaignCompleted))
	w.log.Info("campaign completed", zap.Int64("campaign_id", c.ID))
	w.setCurrent(nil)
}

func (w *Worker) schedule() {
	delay := w.opts.MinDelay
	if spread := w.opts.MaxDelay - w.opts.MinDelay; spread > 0 {
		delay += rand.N(spread)
	}

	w.mu.Lock()
	w.nextSend = w.now().Add(delay)
	w.mu.Unlock()
}

func (w *Worker) setCurrent(c *models.Campaign) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = c
	w.nextSend = time.Time{}
	w.paused = false
}

func (w *Worker) setPaused(id int64, paused bool) {
	w.mu.Lock()
	changed := w.paused != paused
	w.paused = paused
	w.mu.Unlock()

	switch {
	case changed && paused:
		w.log.Warn("WhatsApp disconnected, campaign paused", zap.Int64("campaign_id", id))
	case changed:
		w.log.Info("WhatsApp reconnected, campaign resumed", zap.Int64("campaign_id", id))
	}
}
