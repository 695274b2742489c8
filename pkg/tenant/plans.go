package tenant

import "github.com/shopspring/decimal"

// PlanCaps is the static per-plan allotment consulted by set_plan (§4.6):
// plan changes recompute caps but never retroactively decrement counters.
type PlanCaps struct {
	MaxMonitors             int
	MaxNetworks             int
	MaxTriggers             int
	MaxAPICallsPerHour      int
	MaxStorageGB            decimal.Decimal
	MaxConcurrentOperations int
}

var planCapsTable = map[Plan]PlanCaps{
	PlanFree: {
		MaxMonitors:             5,
		MaxNetworks:             2,
		MaxTriggers:             5,
		MaxAPICallsPerHour:      1000,
		MaxStorageGB:            decimal.NewFromInt(1),
		MaxConcurrentOperations: 2,
	},
	PlanStarter: {
		MaxMonitors:             25,
		MaxNetworks:             5,
		MaxTriggers:             25,
		MaxAPICallsPerHour:      10000,
		MaxStorageGB:            decimal.NewFromInt(10),
		MaxConcurrentOperations: 5,
	},
	PlanPro: {
		MaxMonitors:             100,
		MaxNetworks:             20,
		MaxTriggers:             100,
		MaxAPICallsPerHour:      100000,
		MaxStorageGB:            decimal.NewFromInt(100),
		MaxConcurrentOperations: 20,
	},
	PlanEnterprise: {
		MaxMonitors:             10000,
		MaxNetworks:             1000,
		MaxTriggers:             10000,
		MaxAPICallsPerHour:      1000000,
		MaxStorageGB:            decimal.NewFromInt(1000),
		MaxConcurrentOperations: 100,
	},
}

// CapsForPlan returns the static caps for a plan, falling back to PlanFree
// for an unrecognized value so a bad plan never grants unlimited quota.
func CapsForPlan(p Plan) PlanCaps {
	if c, ok := planCapsTable[p]; ok {
		return c
	}
	return planCapsTable[PlanFree]
}
