// Package export aligns telemetry channels onto a shared row axis and writes
// the result as a flat delimited table.
//
// Each lap flows through the same stages, each producing an immutable value
// for the next:
//
//	Selector.SelectLap -> Strategy.Align -> TableBuilder.Build -> Writer.WriteTable
//
// The Exporter drives the stages lap by lap (or with an ordered worker pool)
// and keeps the only cross-lap state: the running row and lap counters.
//
// Three alignment strategies are available behind the Strategy interface:
// nearest-neighbour onto a master channel, union of timestamps within a
// tolerance, and the deprecated positional index.
package export
