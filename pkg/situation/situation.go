// Package situation resolves the momentary context an action is generated in.
package situation

import (
	"time"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/agent"
	"github.com/rmax-ai/auditsim/pkg/behavior"
	"github.com/rmax-ai/auditsim/pkg/calendar"
	"github.com/rmax-ai/auditsim/pkg/catalog"
)

// Situation is an ephemeral snapshot, recomputed for every action.
type Situation struct {
	Timestamp     time.Time
	BusinessHours bool
	BusinessDay   bool
	Holiday       bool
	HolidayName   string
	Lunch         bool
	Weekend       bool
	OnShift       bool
	Overtime      bool
	Period        calendar.Period
	Expertise     agent.Expertise
	Sensitivity   action.Sensitivity
	State         behavior.State
}

// OffHours reports whether the timestamp is outside business hours.
func (s Situation) OffHours() bool {
	return !s.BusinessHours
}

// intrinsic is the most sensitive data a state would normally touch.
var intrinsic = map[behavior.State]action.Sensitivity{
	behavior.StateIdle:    action.Public,
	behavior.StateQuery:   action.Confidential,
	behavior.StateUpdate:  action.Internal,
	behavior.StateExport:  action.Restricted,
	behavior.StateAdmin:   action.Restricted,
	behavior.StateBreak:   action.Public,
	behavior.StateOffline: action.Public,
}

// Resolver reads only immutable shared data, so one instance serves every
// agent concurrently.
type Resolver struct {
	cal *calendar.Calendar
	cat *catalog.Catalog
}

// NewResolver returns a resolver over cal and cat.
func NewResolver(cal *calendar.Calendar, cat *catalog.Catalog) *Resolver {
	return &Resolver{cal: cal, cat: cat}
}

// Calendar returns the resolver's calendar.
func (r *Resolver) Calendar() *calendar.Calendar { return r.cal }

// Resolve builds the situation for agent a about to act in state at simNow.
// Sensitivity is the lower of what the state implies and the role's
// clearance.
func (r *Resolver) Resolve(a *agent.Agent, state behavior.State, simNow time.Time) Situation {
	name, holiday := r.cal.Holiday(simNow)
	return Situation{
		Timestamp:     simNow,
		BusinessHours: r.cal.IsBusinessHours(simNow),
		BusinessDay:   r.cal.IsBusinessDay(simNow),
		Holiday:       holiday,
		HolidayName:   name,
		Lunch:         r.cal.IsLunch(simNow),
		Weekend:       r.cal.IsWeekend(simNow),
		OnShift:       a.OnShift(simNow, r.cal),
		Overtime:      a.InOvertime(simNow),
		Period:        r.cal.Period(simNow),
		Expertise:     a.EffectiveExpertise(),
		Sensitivity:   action.MinSensitivity(intrinsic[state], r.cat.Clearance(a.Role)),
		State:         state,
	}
}
