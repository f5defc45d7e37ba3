// Package procedure runs the feedthrough acceptance tests.
//
// # Overview
//
// Each test kind is a sweep over the channel map driven by one template:
//
//	Preparing -> (RouteSetup -> Measure -> Classify -> RouteTeardown)* -> Summarize
//
// Preparing configures the mainframe, routes the common supplies and checks
// them. A supply below its minimum aborts the sweep with a failed result
// instead of an error. Every relay closed during a sweep is opened again
// before Summarize, including when the sweep stops on an error or a
// cancelled context.
//
// # Kinds
//
//   - Continuity: two wires per row. Baseline readings with the 44-pin
//     channel routed, then loaded readings with the wire closed, and a wire
//     resistance estimate from the divider model.
//   - Hipot: one wire pair per row. Every other 37-pin wire is grounded while
//     the 44-pin channel sits behind the series test resistor; the
//     insulation resistance is estimated against a DMM impedance calibrated
//     at the start of the sweep.
//   - Pinout: two wires per row, each read against the row's reference
//     voltage.
package procedure
