package engine

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts 5-field expressions, 6-field expressions with a leading
// seconds field ("0 30 * * * ?") and descriptors such as "@every 30s".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron parses a cron expression into a schedule.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidCron, expr, err)
	}
	return sched, nil
}

// MisfirePolicy decides what happens to a fire time the engine missed.
type MisfirePolicy int

const (
	// MisfireCatchUp fires once immediately, then continues on schedule.
	MisfireCatchUp MisfirePolicy = iota
	// MisfireSkip drops missed fires and waits for the next scheduled time.
	MisfireSkip
)

func (p MisfirePolicy) String() string {
	switch p {
	case MisfireCatchUp:
		return "catch_up"
	case MisfireSkip:
		return "skip"
	default:
		return fmt.Sprintf("MisfirePolicy(%d)", int(p))
	}
}

// JobKey identifies a job inside a scheduler.
type JobKey string

// TriggerKey identifies a trigger inside a scheduler.
type TriggerKey string

// Trigger binds a cron schedule and misfire policy to a job. A trigger is
// owned by the scheduler once passed to ScheduleJob or RescheduleJob.
type Trigger struct {
	key      TriggerKey
	jobKey   JobKey
	expr     string
	policy   MisfirePolicy
	schedule cron.Schedule

	next     time.Time
	prev     time.Time
	misfired bool
}

// NewCronTrigger builds a trigger for the given cron expression.
func NewCronTrigger(key TriggerKey, expr string, policy MisfirePolicy) (*Trigger, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: trigger key is required", ErrInvalidJob)
	}
	sched, err := ParseCron(expr)
	if err != nil {
		return nil, err
	}
	return &Trigger{
		key:      key,
		expr:     expr,
		policy:   policy,
		schedule: sched,
	}, nil
}

func (t *Trigger) Key() TriggerKey              { return t.key }
func (t *Trigger) CronExpression() string       { return t.expr }
func (t *Trigger) MisfirePolicy() MisfirePolicy { return t.policy }

func (t *Trigger) info() TriggerInfo {
	return TriggerInfo{
		Key:              t.key,
		JobKey:           t.jobKey,
		CronExpression:   t.expr,
		MisfirePolicy:    t.policy,
		NextFireTime:     t.next,
		PreviousFireTime: t.prev,
	}
}

// TriggerInfo is a point-in-time snapshot of a scheduled trigger.
// A zero NextFireTime means the trigger will not fire again.
type TriggerInfo struct {
	Key              TriggerKey
	JobKey           JobKey
	CronExpression   string
	MisfirePolicy    MisfirePolicy
	NextFireTime     time.Time
	PreviousFireTime time.Time
}
