package kds

import (
	"fmt"
	"strconv"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/comandaclub/expedite/pkg/enums/slalevel"
	"github.com/comandaclub/expedite/pkg/enums/ticketstate"
)

// Fixed fallbacks when neither the station nor its kitchen has targets
// configured.
const (
	DefaultQueueTargetSeconds = 300
	DefaultPrepTargetSeconds  = 600

	DefaultWarningFraction  = 0.8
	DefaultCriticalFraction = 1.0
	DefaultExpiredFraction  = 1.5
)

// Targets are the per-station service-level targets an elapsed time is
// judged against.
type Targets struct {
	QueueTarget time.Duration
	PrepTarget  time.Duration
}

// TargetDirectory resolves targets per station, falling back to the
// owning kitchen's defaults; ok=false means no configuration at that
// level.
type TargetDirectory interface {
	StationTargets(stationID string) (Targets, bool)
	KitchenTargets(kitchenID string) (Targets, bool)
	Fractions() (warning, critical, expired float64)
}

// Snapshot is the computed-on-read SLA view of one ticket or item. It
// is never persisted; callers always recompute from timestamps.
type Snapshot struct {
	QueueSeconds float64 `json:"queue_seconds"`
	PrepSeconds  float64 `json:"prep_seconds"`
	TotalSeconds float64 `json:"total_seconds"`

	QueueTargetSeconds float64 `json:"queue_target_seconds"`
	PrepTargetSeconds  float64 `json:"prep_target_seconds"`

	QueueLevel string `json:"queue_level"`
	PrepLevel  string `json:"prep_level"`
	TotalLevel string `json:"total_level"`

	// Status collapses the total-time level into the three dashboard
	// buckets: on_time, at_risk, delayed.
	Status string `json:"status"`
}

// SLAEngine classifies elapsed workflow times against configured
// targets. It is stateless with respect to mutation and only reads
// entity timestamps.
type SLAEngine struct {
	targets TargetDirectory
}

func NewSLAEngine(targets TargetDirectory) *SLAEngine {
	return &SLAEngine{targets: targets}
}

// resolveTargets walks station -> kitchen -> fixed defaults.
func (e *SLAEngine) resolveTargets(kitchenID, stationID string) Targets {
	if t, ok := e.targets.StationTargets(stationID); ok {
		return t
	}
	if t, ok := e.targets.KitchenTargets(kitchenID); ok {
		return t
	}
	return Targets{
		QueueTarget: DefaultQueueTargetSeconds * time.Second,
		PrepTarget:  DefaultPrepTargetSeconds * time.Second,
	}
}

// classify buckets an elapsed duration against a target using the
// configured fractions.
func (e *SLAEngine) classify(elapsed, target time.Duration) slalevel.Level {
	warning, critical, expired := e.targets.Fractions()
	t := float64(target)
	switch {
	case float64(elapsed) < t*warning:
		return slalevel.Levels.Normal
	case float64(elapsed) < t*critical:
		return slalevel.Levels.Warning
	case float64(elapsed) < t*expired:
		return slalevel.Levels.Critical
	default:
		return slalevel.Levels.Expired
	}
}

// Evaluate computes the snapshot for one set of milestones. "now"
// stands in for any milestone not yet reached, so in-flight work
// reports live elapsed time. Prep time is zero until preparation has
// started.
func (e *SLAEngine) Evaluate(queuedAt time.Time, preparingAt, readyAt *time.Time, kitchenID, stationID string, now time.Time) Snapshot {
	targets := e.resolveTargets(kitchenID, stationID)

	queueEnd := now
	if preparingAt != nil {
		queueEnd = *preparingAt
	}
	queueTime := queueEnd.Sub(queuedAt)
	if queueTime < 0 {
		queueTime = 0
	}

	var prepTime time.Duration
	if preparingAt != nil {
		prepEnd := now
		if readyAt != nil {
			prepEnd = *readyAt
		}
		prepTime = prepEnd.Sub(*preparingAt)
		if prepTime < 0 {
			prepTime = 0
		}
	}

	totalTime := queueTime + prepTime
	totalTarget := targets.QueueTarget + targets.PrepTarget

	totalLevel := e.classify(totalTime, totalTarget)

	return Snapshot{
		QueueSeconds:       queueTime.Seconds(),
		PrepSeconds:        prepTime.Seconds(),
		TotalSeconds:       totalTime.Seconds(),
		QueueTargetSeconds: targets.QueueTarget.Seconds(),
		PrepTargetSeconds:  targets.PrepTarget.Seconds(),
		QueueLevel:         e.classify(queueTime, targets.QueueTarget).Code(),
		PrepLevel:          e.classify(prepTime, targets.PrepTarget).Code(),
		TotalLevel:         totalLevel.Code(),
		Status:             slalevel.BucketFor(totalLevel),
	}
}

// TicketSLA evaluates a whole ticket from its own milestones.
func (e *SLAEngine) TicketSLA(t *Ticket, now time.Time) Snapshot {
	return e.Evaluate(t.CreatedAt, t.StartedAt, t.ReadyAt, t.KitchenID, t.StationID, now)
}

// ItemSLA evaluates one item against its owning ticket's station
// targets.
func (e *SLAEngine) ItemSLA(t *Ticket, item *Item, now time.Time) Snapshot {
	return e.Evaluate(item.Milestones.QueuedAt, item.Milestones.PreparingAt, item.Milestones.ReadyAt, t.KitchenID, t.StationID, now)
}

// StationSummary is the live dashboard aggregate for one station.
type StationSummary struct {
	StationID     string `json:"station_id"`
	ActiveTickets int    `json:"active_tickets"`

	ByState  map[string]int `json:"by_state"`
	ByStatus map[string]int `json:"by_status"`

	AvgQueueSeconds float64 `json:"avg_queue_seconds"`
	AvgPrepSeconds  float64 `json:"avg_prep_seconds"`

	OldestTicketAgeSeconds float64 `json:"oldest_ticket_age_seconds"`
	OldestTicketStatus     string  `json:"oldest_ticket_status,omitempty"`
}

// Summarize aggregates all non-terminal tickets at a station. A
// station with no active tickets yields an all-zero summary, not an
// error.
func (e *SLAEngine) Summarize(stationID string, tickets []*Ticket, now time.Time) StationSummary {
	summary := StationSummary{
		StationID: stationID,
		ByState:   make(map[string]int),
		ByStatus:  make(map[string]int),
	}

	var queueSum, prepSum float64
	var oldestAge float64
	var oldestStatus string

	for _, t := range tickets {
		if t.StationID != stationID || ticketstate.IsTerminalCode(t.State) {
			continue
		}

		snap := e.TicketSLA(t, now)
		summary.ActiveTickets++
		summary.ByState[t.State]++
		summary.ByStatus[snap.Status]++
		queueSum += snap.QueueSeconds
		prepSum += snap.PrepSeconds

		age := now.Sub(t.CreatedAt).Seconds()
		if age > oldestAge {
			oldestAge = age
			oldestStatus = snap.Status
		}
	}

	if summary.ActiveTickets > 0 {
		n := float64(summary.ActiveTickets)
		summary.AvgQueueSeconds = queueSum / n
		summary.AvgPrepSeconds = prepSum / n
		summary.OldestTicketAgeSeconds = oldestAge
		summary.OldestTicketStatus = oldestStatus
	}

	return summary
}

// ConfigTargets reads SLA targets from service configuration.
//
// Keys (all optional, seconds / fractions):
//
//	sla.station.<station>.queue_target_seconds
//	sla.station.<station>.prep_target_seconds
//	sla.kitchen.<kitchen>.queue_target_seconds
//	sla.kitchen.<kitchen>.prep_target_seconds
//	sla.warning_fraction
//	sla.critical_fraction
//	sla.expired_fraction
type ConfigTargets struct {
	config *apt.Config
}

func NewConfigTargets(config *apt.Config) *ConfigTargets {
	return &ConfigTargets{config: config}
}

func (c *ConfigTargets) targetsAt(prefix string) (Targets, bool) {
	queueStr, _ := c.config.GetString(prefix + ".queue_target_seconds")
	prepStr, _ := c.config.GetString(prefix + ".prep_target_seconds")
	if queueStr == "" && prepStr == "" {
		return Targets{}, false
	}

	targets := Targets{
		QueueTarget: DefaultQueueTargetSeconds * time.Second,
		PrepTarget:  DefaultPrepTargetSeconds * time.Second,
	}
	if secs, err := strconv.Atoi(queueStr); err == nil && secs > 0 {
		targets.QueueTarget = time.Duration(secs) * time.Second
	}
	if secs, err := strconv.Atoi(prepStr); err == nil && secs > 0 {
		targets.PrepTarget = time.Duration(secs) * time.Second
	}
	return targets, true
}

func (c *ConfigTargets) StationTargets(stationID string) (Targets, bool) {
	return c.targetsAt(fmt.Sprintf("sla.station.%s", stationID))
}

func (c *ConfigTargets) KitchenTargets(kitchenID string) (Targets, bool) {
	return c.targetsAt(fmt.Sprintf("sla.kitchen.%s", kitchenID))
}

func (c *ConfigTargets) Fractions() (float64, float64, float64) {
	warning := fractionOr(c.config, "sla.warning_fraction", DefaultWarningFraction)
	critical := fractionOr(c.config, "sla.critical_fraction", DefaultCriticalFraction)
	expired := fractionOr(c.config, "sla.expired_fraction", DefaultExpiredFraction)
	return warning, critical, expired
}

func fractionOr(config *apt.Config, key string, fallback float64) float64 {
	str, _ := config.GetString(key)
	if str == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}
