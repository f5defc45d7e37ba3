// Package resistance converts divider voltages into wire and insulation
// resistances.
//
// # Overview
//
// Nothing here touches the instrument. The functions take the voltages a
// procedure measured plus the fixture's known resistors and return derived
// quantities together with a verdict.
//
// # Continuity
//
// During a continuity reading the wire under test sits between R44, fed
// from the 5 V supply, and R37, tied to ground. The branch current is
// estimated on both sides and averaged:
//
//	c1 = v1 / R37
//	c2 = (Vsupply - v2) / R44
//	r  = |v2 - v1| / ((c1 + c2) / 2)
//
// # Isolation
//
// The hi-pot supply reaches the DMM through a series test resistor. The
// DMM's own input impedance is calibrated first, then removed from every
// per-wire estimate as a parallel resistance:
//
//	Rdmm = -(Rtest * Vdmm) / (Vdmm - Vsupply)
//	R    = -(Rtest * v2) / (v2 - Vsupply)
//	r    = -(R * Rdmm) / (R - Rdmm)
//
// A reading equal to Vdmm means no measurable leakage, and r grows without
// bound as v2 approaches it from below. Readings above Vdmm are not
// physical for this fixture and give a negative r.
package resistance
