package behavior

import "time"

type row = map[State]float64

func exp(mean time.Duration) WaitSpec {
	return WaitSpec{Kind: WaitExponential, Mean: mean, Max: 20 * mean}
}

func uniform(lo, hi time.Duration) WaitSpec {
	return WaitSpec{Kind: WaitUniform, Min: lo, Max: hi}
}

// humanWaits is shared by the staffed roles; only the transition tables differ.
func humanWaits(query, update time.Duration) map[State]WaitSpec {
	return map[State]WaitSpec{
		StateIdle:    exp(90 * time.Second),
		StateQuery:   exp(query),
		StateUpdate:  exp(update),
		StateExport:  {Kind: WaitLogNormal, Mean: 2 * time.Minute, Sigma: 0.5, Max: 15 * time.Minute},
		StateAdmin:   exp(3 * time.Minute),
		StateBreak:   uniform(5*time.Minute, 20*time.Minute),
		StateOffline: uniform(10*time.Minute, 40*time.Minute),
	}
}

func onlyRows(waits map[State]WaitSpec, rows map[State]row) map[State]WaitSpec {
	out := make(map[State]WaitSpec, len(rows))
	for s := range rows {
		if w, ok := waits[s]; ok {
			out[s] = w
		}
	}
	return out
}

func human(role Role, query, update time.Duration, rows map[State]row) ProfileSpec {
	return ProfileSpec{
		Role:        role,
		Transitions: rows,
		Waits:       onlyRows(humanWaits(query, update), rows),
	}
}

// DefaultProfiles returns the built-in behavior tables for every role.
func DefaultProfiles() []ProfileSpec {
	return []ProfileSpec{
		human(RoleAnalyst, 45*time.Second, time.Minute, map[State]row{
			StateIdle:    {StateIdle: .15, StateQuery: .60, StateUpdate: .05, StateExport: .08, StateBreak: .07, StateOffline: .05},
			StateQuery:   {StateIdle: .30, StateQuery: .45, StateUpdate: .05, StateExport: .10, StateBreak: .05, StateOffline: .05},
			StateUpdate:  {StateIdle: .40, StateQuery: .40, StateUpdate: .10, StateBreak: .05, StateOffline: .05},
			StateExport:  {StateIdle: .50, StateQuery: .35, StateExport: .05, StateBreak: .05, StateOffline: .05},
			StateBreak:   {StateIdle: .60, StateQuery: .20, StateBreak: .15, StateOffline: .05},
			StateOffline: {StateIdle: .70, StateOffline: .30},
		}),
		human(RoleEngineer, 40*time.Second, 75*time.Second, map[State]row{
			StateIdle:    {StateIdle: .15, StateQuery: .50, StateUpdate: .20, StateAdmin: .03, StateBreak: .07, StateOffline: .05},
			StateQuery:   {StateIdle: .25, StateQuery: .45, StateUpdate: .20, StateExport: .02, StateBreak: .05, StateOffline: .03},
			StateUpdate:  {StateIdle: .30, StateQuery: .35, StateUpdate: .25, StateAdmin: .02, StateBreak: .05, StateOffline: .03},
			StateExport:  {StateIdle: .60, StateQuery: .30, StateBreak: .05, StateOffline: .05},
			StateAdmin:   {StateIdle: .50, StateQuery: .30, StateUpdate: .15, StateBreak: .05},
			StateBreak:   {StateIdle: .65, StateQuery: .20, StateBreak: .10, StateOffline: .05},
			StateOffline: {StateIdle: .75, StateOffline: .25},
		}),
		human(RoleFinance, time.Minute, 90*time.Second, map[State]row{
			StateIdle:    {StateIdle: .20, StateQuery: .45, StateUpdate: .15, StateExport: .10, StateBreak: .06, StateOffline: .04},
			StateQuery:   {StateIdle: .30, StateQuery: .40, StateUpdate: .12, StateExport: .10, StateBreak: .05, StateOffline: .03},
			StateUpdate:  {StateIdle: .35, StateQuery: .40, StateUpdate: .15, StateBreak: .05, StateOffline: .05},
			StateExport:  {StateIdle: .55, StateQuery: .30, StateExport: .05, StateBreak: .05, StateOffline: .05},
			StateBreak:   {StateIdle: .60, StateQuery: .25, StateBreak: .10, StateOffline: .05},
			StateOffline: {StateIdle: .70, StateOffline: .30},
		}),
		human(RoleHR, 70*time.Second, 2*time.Minute, map[State]row{
			StateIdle:    {StateIdle: .25, StateQuery: .45, StateUpdate: .15, StateExport: .05, StateBreak: .06, StateOffline: .04},
			StateQuery:   {StateIdle: .35, StateQuery: .40, StateUpdate: .15, StateExport: .03, StateBreak: .04, StateOffline: .03},
			StateUpdate:  {StateIdle: .40, StateQuery: .35, StateUpdate: .15, StateBreak: .05, StateOffline: .05},
			StateExport:  {StateIdle: .60, StateQuery: .30, StateBreak: .05, StateOffline: .05},
			StateBreak:   {StateIdle: .60, StateQuery: .25, StateBreak: .10, StateOffline: .05},
			StateOffline: {StateIdle: .70, StateOffline: .30},
		}),
		human(RoleSupport, 30*time.Second, 50*time.Second, map[State]row{
			StateIdle:    {StateIdle: .10, StateQuery: .70, StateUpdate: .10, StateBreak: .06, StateOffline: .04},
			StateQuery:   {StateIdle: .20, StateQuery: .60, StateUpdate: .12, StateBreak: .05, StateOffline: .03},
			StateUpdate:  {StateIdle: .30, StateQuery: .55, StateUpdate: .05, StateBreak: .05, StateOffline: .05},
			StateBreak:   {StateIdle: .55, StateQuery: .30, StateBreak: .10, StateOffline: .05},
			StateOffline: {StateIdle: .70, StateOffline: .30},
		}),
		human(RoleDBA, 50*time.Second, 80*time.Second, map[State]row{
			StateIdle:    {StateIdle: .20, StateQuery: .35, StateUpdate: .15, StateExport: .05, StateAdmin: .15, StateBreak: .06, StateOffline: .04},
			StateQuery:   {StateIdle: .25, StateQuery: .35, StateUpdate: .15, StateExport: .05, StateAdmin: .12, StateBreak: .05, StateOffline: .03},
			StateUpdate:  {StateIdle: .30, StateQuery: .30, StateUpdate: .20, StateAdmin: .12, StateBreak: .05, StateOffline: .03},
			StateExport:  {StateIdle: .50, StateQuery: .30, StateAdmin: .10, StateBreak: .05, StateOffline: .05},
			StateAdmin:   {StateIdle: .35, StateQuery: .30, StateUpdate: .10, StateAdmin: .15, StateBreak: .05, StateOffline: .05},
			StateBreak:   {StateIdle: .60, StateQuery: .25, StateBreak: .10, StateOffline: .05},
			StateOffline: {StateIdle: .70, StateOffline: .30},
		}),
		{
			// Batch jobs: idle until the next quarter hour, then a short burst.
			Role: RoleService,
			Transitions: map[State]row{
				StateIdle:   {StateQuery: .70, StateUpdate: .20, StateExport: .10},
				StateQuery:  {StateIdle: .40, StateQuery: .30, StateUpdate: .20, StateExport: .10},
				StateUpdate: {StateIdle: .50, StateQuery: .30, StateUpdate: .20},
				StateExport: {StateIdle: .80, StateQuery: .20},
			},
			Waits: map[State]WaitSpec{
				StateIdle:   {Kind: WaitCron, Cron: "*/15 * * * *"},
				StateQuery:  {Kind: WaitFixed, Mean: 5 * time.Second},
				StateUpdate: {Kind: WaitFixed, Mean: 10 * time.Second},
				StateExport: {Kind: WaitFixed, Mean: 30 * time.Second},
			},
		},
	}
}

// DefaultModel returns the validated built-in model.
func DefaultModel() *Model {
	m, err := NewModel(DefaultProfiles()...)
	if err != nil {
		panic("behavior: built-in profiles invalid: " + err.Error())
	}
	return m
}
