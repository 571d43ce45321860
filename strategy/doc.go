// Package strategy maps message attributes to a named coordination strategy
// and the routing configuration the queue delivers it with.
//
// DetermineStrategy picks exactly one name by precedence: privileged sender,
// urgent priority, system kinds, broadcast, standard. ApplyRules is additive:
// every rule matching the message's priority, kind and sender role
// contributes its tag to Plan.RulesApplied and its directives to the plan, so
// an urgent broadcast from a privileged sender lists all three tags while
// still selecting a single strategy.
package strategy
