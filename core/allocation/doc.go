// Package allocation assigns attack agents to defense-anchored task groups.
//
// A run scores coalitions with ValueModel, derives a per-agent priority with
// ShapleyEvaluator (exact below Params.ExactThreshold agents, sampled above),
// seeds one group per defense agent, places attackers greedily by threat and
// match score, and finally lets Rebalancer move low-threat attackers out of
// overloaded groups within a fixed move budget. Engine drives the whole
// sequence through the RunState machine and freezes the outcome in a Result.
package allocation
