package agent

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/behavior"
	"github.com/rmax-ai/auditsim/pkg/calendar"
)

func TestApportion_LargestRemainder(t *testing.T) {
	counts, err := Apportion(10, map[behavior.Role]float64{
		behavior.RoleAnalyst: 1,
		behavior.RoleSupport: 1,
		behavior.RoleHR:      1,
	})
	require.NoError(t, err)

	// 10/3 each: 3+3+3, the leftover seat goes to the first role in order.
	assert.Equal(t, 4, counts[behavior.RoleAnalyst])
	assert.Equal(t, 3, counts[behavior.RoleHR])
	assert.Equal(t, 3, counts[behavior.RoleSupport])

	counts, err = Apportion(7, map[behavior.Role]float64{behavior.RoleDBA: 0.7, behavior.RoleEngineer: 0.3})
	require.NoError(t, err)
	assert.Equal(t, 5, counts[behavior.RoleDBA])
	assert.Equal(t, 2, counts[behavior.RoleEngineer])

	_, err = Apportion(5, map[behavior.Role]float64{"pilot": 1})
	assert.Error(t, err)
	_, err = Apportion(5, map[behavior.Role]float64{behavior.RoleHR: 0})
	assert.Error(t, err)
}

func TestBuildPopulation_Deterministic(t *testing.T) {
	spec := PopulationSpec{Size: 50, OvertimeFraction: 0.2}

	a, err := BuildPopulation(spec, rand.New(rand.NewSource(99)))
	require.NoError(t, err)
	b, err := BuildPopulation(spec, rand.New(rand.NewSource(99)))
	require.NoError(t, err)

	require.Len(t, a, 50)
	seen := make(map[string]bool)
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.Equal(t, a[i].Expertise, b[i].Expertise)
		assert.Equal(t, a[i].Seed, b[i].Seed)
		assert.Equal(t, a[i].Schedule.OvertimeAuthorized, b[i].Schedule.OvertimeAuthorized)
		assert.False(t, seen[a[i].ID], "duplicate id %s", a[i].ID)
		seen[a[i].ID] = true
	}
	assert.Equal(t, "analyst-001", a[0].ID)
	assert.Equal(t, behavior.StateIdle, a[0].State())
}

func TestBuildPopulation_RejectsEmpty(t *testing.T) {
	_, err := BuildPopulation(PopulationSpec{}, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestAgent_ScheduleAndOvertime(t *testing.T) {
	cal := calendar.DefaultCalendar()
	a, err := New("finance-001", behavior.RoleFinance, Intermediate, WorkSchedule{
		Hours:              calendar.DefaultBusinessHours(),
		OvertimeAuthorized: true,
		Overtime:           DefaultOvertime(),
	}, 1, time.UTC)
	require.NoError(t, err)

	assert.True(t, a.OnShift(time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), cal))
	assert.False(t, a.OnShift(time.Date(2024, 3, 4, 19, 0, 0, 0, time.UTC), cal))
	assert.False(t, a.OnShift(time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC), cal), "saturday")
	assert.False(t, a.OnShift(time.Date(2024, 12, 25, 10, 0, 0, 0, time.UTC), cal), "holiday")
	assert.True(t, a.InOvertime(time.Date(2024, 3, 4, 19, 0, 0, 0, time.UTC)))
	assert.False(t, a.InOvertime(time.Date(2024, 3, 4, 23, 0, 0, 0, time.UTC)))

	svc, err := New("service-001", behavior.RoleService, Expert, WorkSchedule{Weekends: true, Holidays: true}, 1, time.UTC)
	require.NoError(t, err)
	assert.True(t, svc.OnShift(time.Date(2024, 12, 25, 3, 0, 0, 0, time.UTC), cal))
}

func TestAgent_CountersAndPromotion(t *testing.T) {
	a, err := New("analyst-001", behavior.RoleAnalyst, Novice, WorkSchedule{}, 1, nil)
	require.NoError(t, err)

	for i := 0; i < PromotionThreshold-1; i++ {
		a.RecordOutcome(action.Succeeded(time.Millisecond), false)
	}
	assert.Equal(t, Novice, a.EffectiveExpertise())

	fail := action.Failed(action.ErrTimeout, 0, "slow")
	fail.Retries = 2
	a.RecordOutcome(fail, true)
	a.RecordGenerationError()

	assert.Equal(t, Intermediate, a.EffectiveExpertise())
	assert.Equal(t, Counters{
		Actions:          PromotionThreshold,
		Failures:         1,
		Retries:          2,
		GenerationErrors: 1,
		ScenarioActions:  1,
	}, a.Counters())
}

func TestParseExpertise(t *testing.T) {
	e, err := ParseExpertise("Expert")
	require.NoError(t, err)
	assert.Equal(t, Expert, e)
	assert.Greater(t, Expert.Weight(), Novice.Weight())
	_, err = ParseExpertise("guru")
	assert.Error(t, err)
}
