package scenario

import (
	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/situation"
)

// Predicate is a condition on the situation a stage may run in.
type Predicate string

const (
	Any            Predicate = "any"
	BusinessHours  Predicate = "business_hours"
	OffHours       Predicate = "off_hours"
	Holiday        Predicate = "holiday"
	Lunch          Predicate = "lunch"
	Weekend        Predicate = "weekend"
	NonBusinessDay Predicate = "non_business_day"
)

// Valid reports whether p is a known predicate. The empty predicate means Any.
func (p Predicate) Valid() bool {
	switch p {
	case "", Any, BusinessHours, OffHours, Holiday, Lunch, Weekend, NonBusinessDay:
		return true
	}
	return false
}

// Holds evaluates p against s.
func (p Predicate) Holds(s situation.Situation) bool {
	switch p {
	case BusinessHours:
		return s.BusinessHours
	case OffHours:
		return s.OffHours()
	case Holiday:
		return s.Holiday
	case Lunch:
		return s.Lunch
	case Weekend:
		return s.Weekend
	case NonBusinessDay:
		return !s.BusinessDay
	default:
		return true
	}
}

// SuccessPredicate decides whether a stage's outcome lets the scenario
// move on.
type SuccessPredicate string

const (
	OnAny     SuccessPredicate = "any"
	OnSuccess SuccessPredicate = "success"
	OnFailure SuccessPredicate = "failure"
)

// Valid reports whether p is known. The empty predicate means OnAny.
func (p SuccessPredicate) Valid() bool {
	switch p {
	case "", OnAny, OnSuccess, OnFailure:
		return true
	}
	return false
}

// Holds evaluates p against o.
func (p SuccessPredicate) Holds(o action.Outcome) bool {
	switch p {
	case OnSuccess:
		return o.Success
	case OnFailure:
		return !o.Success
	default:
		return true
	}
}
