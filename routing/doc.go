// Package routing selects a delivery route kind for each message.
//
// The Analyzer scores the candidate kinds from fixed base scores, requested
// optimization strategies and the performance it has recorded for the
// message's route key. Scoring is a pure function of its inputs: Analyze takes
// a Snapshot instead of reading live state, so identical inputs always produce
// the same ranking. The Manager is a named route registry kept independent of
// live traffic; when attached to an Analyzer, its registered kinds narrow the
// candidate set.
package routing
