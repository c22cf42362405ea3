package agent

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/rmax-ai/auditsim/pkg/behavior"
	"github.com/rmax-ai/auditsim/pkg/calendar"
)

// PopulationSpec describes the population to build.
type PopulationSpec struct {
	Size    int
	RoleMix map[behavior.Role]float64

	// Hours is the regular shift of staffed roles.
	Hours calendar.TimeWindow

	OvertimeFraction float64
	Overtime         calendar.TimeWindow

	Location *time.Location
}

// DefaultRoleMix is used when PopulationSpec.RoleMix is empty.
func DefaultRoleMix() map[behavior.Role]float64 {
	return map[behavior.Role]float64{
		behavior.RoleAnalyst:  0.20,
		behavior.RoleEngineer: 0.20,
		behavior.RoleFinance:  0.10,
		behavior.RoleHR:       0.10,
		behavior.RoleSupport:  0.25,
		behavior.RoleDBA:      0.05,
		behavior.RoleService:  0.10,
	}
}

// DefaultOvertime is weekday evenings.
func DefaultOvertime() calendar.TimeWindow {
	return calendar.TimeWindow{Days: []string{"mon", "tue", "wed", "thu", "fri"}, StartTime: "17:00", EndTime: "22:00"}
}

// Apportion splits size across roles proportionally to mix using the
// largest-remainder method. Ties go to the role listed first in
// behavior.AllRoles.
func Apportion(size int, mix map[behavior.Role]float64) (map[behavior.Role]int, error) {
	var total float64
	var roles []behavior.Role
	for _, r := range behavior.AllRoles() {
		w, ok := mix[r]
		if !ok || w == 0 {
			continue
		}
		if w < 0 || math.IsNaN(w) {
			return nil, fmt.Errorf("role %s: invalid mix weight %v", r, w)
		}
		total += w
		roles = append(roles, r)
	}
	for r := range mix {
		if _, err := behavior.ParseRole(string(r)); err != nil {
			return nil, err
		}
	}
	if total == 0 {
		return nil, fmt.Errorf("role mix has no positive weights")
	}

	type share struct {
		role behavior.Role
		rem  float64
		idx  int
	}
	counts := make(map[behavior.Role]int, len(roles))
	shares := make([]share, 0, len(roles))
	assigned := 0
	for i, r := range roles {
		q := mix[r] / total * float64(size)
		n := int(math.Floor(q))
		counts[r] = n
		assigned += n
		shares = append(shares, share{role: r, rem: q - float64(n), idx: i})
	}

	sort.SliceStable(shares, func(i, j int) bool {
		if shares[i].rem != shares[j].rem {
			return shares[i].rem > shares[j].rem
		}
		return shares[i].idx < shares[j].idx
	})
	for i := 0; assigned < size; i++ {
		counts[shares[i%len(shares)].role]++
		assigned++
	}
	return counts, nil
}

// BuildPopulation creates spec.Size agents. Agents are grouped by role in
// behavior.AllRoles order and numbered per role ("analyst-001"). Expertise,
// overtime authorization and per-agent seeds come from rng, so the same
// seed always yields the same population.
func BuildPopulation(spec PopulationSpec, rng *rand.Rand) ([]*Agent, error) {
	if spec.Size <= 0 {
		return nil, fmt.Errorf("population size must be positive, got %d", spec.Size)
	}
	mix := spec.RoleMix
	if len(mix) == 0 {
		mix = DefaultRoleMix()
	}
	counts, err := Apportion(spec.Size, mix)
	if err != nil {
		return nil, err
	}

	hours := spec.Hours
	if hours.IsZero() {
		hours = calendar.DefaultBusinessHours()
	}
	overtime := spec.Overtime
	if overtime.IsZero() {
		overtime = DefaultOvertime()
	}

	agents := make([]*Agent, 0, spec.Size)
	for _, role := range behavior.AllRoles() {
		for i := 1; i <= counts[role]; i++ {
			id := fmt.Sprintf("%s-%03d", role, i)
			expertise := drawExpertise(rng)
			authorized := rng.Float64() < spec.OvertimeFraction
			seed := rng.Int63()

			ws := WorkSchedule{
				Hours:              hours,
				OvertimeAuthorized: authorized,
				Overtime:           overtime,
			}
			if !role.Human() {
				// Service accounts run around the clock.
				ws = WorkSchedule{Weekends: true, Holidays: true}
				expertise = Expert
			}

			a, err := New(id, role, expertise, ws, seed, spec.Location)
			if err != nil {
				return nil, err
			}
			agents = append(agents, a)
		}
	}
	return agents, nil
}

func drawExpertise(rng *rand.Rand) Expertise {
	switch u := rng.Float64(); {
	case u < 0.3:
		return Novice
	case u < 0.8:
		return Intermediate
	default:
		return Expert
	}
}
