// Package gain computes the per-transducer drive state (duty and phase) that
// produces a target acoustic field for a geometry.
//
// Every Gain is a deterministic function of its parameters and the geometry it
// is evaluated on. Gains are safe to share between goroutines and between
// several gain sequences; results are cached per geometry layout.
//
// Basic usage:
//
//	geo := geometry.New()
//	geo.AddDevice(geometry.Vector{}, geometry.Vector{}, 0)
//
//	g := gain.NewFocalPoint(geometry.Vector{X: 90, Y: 70, Z: 150}, 1.0)
//	states, err := g.Calc(geo)
package gain
