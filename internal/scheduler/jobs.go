// Package scheduler holds the periodic jobs of the reminder daemon.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/internal/notify"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// LoanLister is the read side of the coordinator the jobs need
type LoanLister interface {
	ListLoans(ctx context.Context) ([]*domain.Loan, error)
}

// ReminderScheduler schedules one reminder
type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, name string, at time.Time) error
}

// Jobs keeps reminders in step with the loan list and reports overdue loans
type Jobs struct {
	loans     LoanLister
	reminders ReminderScheduler
	logger    *zap.Logger
	location  *time.Location
	now       func() time.Time

	mu        sync.Mutex
	scheduled map[string]bool
}

func NewJobs(loans LoanLister, reminders ReminderScheduler, location *time.Location, logger *zap.Logger) *Jobs {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jobs{
		loans:     loans,
		reminders: reminders,
		logger:    logger.Named("scheduler"),
		location:  location,
		now:       time.Now,
		scheduled: make(map[string]bool),
	}
}

// Register adds both jobs to c using the given cron specs
func (j *Jobs) Register(c *cron.Cron, syncSpec, overdueSpec string) error {
	if _, err := c.AddFunc(syncSpec, func() { j.run("sync_reminders", j.SyncReminders) }); err != nil {
		return fmt.Errorf("schedule reminder sync %q: %w", syncSpec, err)
	}
	if _, err := c.AddFunc(overdueSpec, func() { j.run("report_overdue", j.reportOverdue) }); err != nil {
		return fmt.Errorf("schedule overdue report %q: %w", overdueSpec, err)
	}
	return nil
}

func (j *Jobs) run(name string, job func(context.Context) (int, error)) {
	start := time.Now()
	n, err := job(context.Background())
	if err != nil {
		j.logger.Error("job failed", zap.String("job", name), zap.Error(err))
		return
	}
	j.logger.Info("job finished",
		zap.String("job", name),
		zap.Int("count", n),
		zap.Duration("duration", time.Since(start)),
	)
}

// SyncReminders schedules a reminder at the start of the due date of every
// loan that has not been reminded about yet. It returns how many reminders
// were added.
func (j *Jobs) SyncReminders(ctx context.Context) (int, error) {
	loans, err := j.loans.ListLoans(ctx)
	if err != nil {
		return 0, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	added := 0
	for _, loan := range loans {
		key := reminderKey(loan)
		if j.scheduled[key] {
			continue
		}

		err := j.reminders.ScheduleReminder(ctx, loan.Name, loan.DueDate.At(j.location))
		if errors.Is(err, notify.ErrReminderInPast) {
			continue
		}
		if err != nil {
			j.logger.Warn("failed to schedule reminder", zap.String("loan_id", loan.ID), zap.Error(err))
			continue
		}
		j.scheduled[key] = true
		added++
	}
	return added, nil
}

// OverdueLoans returns loans whose due date has passed with money owed
func (j *Jobs) OverdueLoans(ctx context.Context) ([]*domain.Loan, error) {
	loans, err := j.loans.ListLoans(ctx)
	if err != nil {
		return nil, err
	}

	now := j.now().In(j.location)
	overdue := make([]*domain.Loan, 0)
	for _, loan := range loans {
		if loan.IsOverdue(now) {
			overdue = append(overdue, loan)
		}
	}
	return overdue, nil
}

func (j *Jobs) reportOverdue(ctx context.Context) (int, error) {
	overdue, err := j.OverdueLoans(ctx)
	if err != nil {
		return 0, err
	}
	for _, loan := range overdue {
		j.logger.Warn("loan overdue",
			zap.String("loan_id", loan.ID),
			zap.String("name", loan.Name),
			zap.String("due_date", loan.DueDate.String()),
			zap.String("remaining", loan.Remaining().String()),
		)
	}
	return len(overdue), nil
}

// reminderKey identifies a reminder by what it says and when it fires, so a
// loan recorded offline and later listed under its server id is reminded
// once. A loan whose due date moves gets a new reminder; the old one still
// fires.
func reminderKey(loan *domain.Loan) string {
	return strings.TrimSpace(loan.Name) + "@" + loan.DueDate.String()
}
