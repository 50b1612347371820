// Package notify delivers one-shot loan reminders at a given instant.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const ReminderTitle = "Loan Reminder"

var ErrReminderInPast = errors.New("reminder time is in the past")

// Reminder is the content of one notification
type Reminder struct {
	Title string    `json:"title"`
	Body  string    `json:"body"`
	At    time.Time `json:"at"`
}

// NewReminder builds the reminder for a loan due at at
func NewReminder(name string, at time.Time) Reminder {
	return Reminder{
		Title: ReminderTitle,
		Body:  fmt.Sprintf("Loan due for %s", name),
		At:    at,
	}
}

// Sink shows a reminder to the user
type Sink interface {
	Deliver(ctx context.Context, reminder Reminder) error
}

// LogSink delivers reminders as log lines
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(_ context.Context, reminder Reminder) error {
	s.logger.Info(reminder.Title,
		zap.String("body", reminder.Body),
		zap.Time("at", reminder.At),
	)
	return nil
}

// onceAt fires a single time at the given instant
type onceAt time.Time

func (o onceAt) Next(t time.Time) time.Time {
	at := time.Time(o)
	if at.After(t) {
		return at
	}
	return time.Time{}
}

// CronNotifier schedules reminders on a cron runner. Scheduled reminders
// cannot be cancelled.
type CronNotifier struct {
	cron   *cron.Cron
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*CronNotifier)

// WithClock overrides the clock used to reject past reminders
func WithClock(now func() time.Time) Option {
	return func(n *CronNotifier) { n.now = now }
}

// NewCronNotifier uses c when given, so reminders can share the scheduler
// daemon's runner; otherwise it creates its own.
func NewCronNotifier(c *cron.Cron, sink Sink, logger *zap.Logger, opts ...Option) *CronNotifier {
	if c == nil {
		c = cron.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &CronNotifier{
		cron:   c,
		sink:   sink,
		logger: logger.Named("notify"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Start runs the underlying cron in its own goroutine
func (n *CronNotifier) Start() {
	n.cron.Start()
}

// Stop halts the runner and returns a context done once running
// deliveries finish
func (n *CronNotifier) Stop() context.Context {
	return n.cron.Stop()
}

// ScheduleReminder registers a reminder for the loan named name, firing at
// at with title "Loan Reminder" and body "Loan due for <name>".
func (n *CronNotifier) ScheduleReminder(ctx context.Context, name string, at time.Time) error {
	if !at.After(n.now()) {
		return fmt.Errorf("%w: %s", ErrReminderInPast, at.Format(time.RFC3339))
	}

	reminder := NewReminder(name, at)
	deliverCtx := context.WithoutCancel(ctx)
	entryID := make(chan cron.EntryID, 1)
	entryID <- n.cron.Schedule(onceAt(at), cron.FuncJob(func() {
		defer func() { n.cron.Remove(<-entryID) }()
		if err := n.sink.Deliver(deliverCtx, reminder); err != nil {
			n.logger.Error("failed to deliver reminder", zap.String("loan", name), zap.Error(err))
		}
	}))

	n.logger.Debug("reminder scheduled", zap.String("loan", name), zap.Time("at", at))
	return nil
}
