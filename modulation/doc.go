// Package modulation generates the amplitude envelope applied uniformly to
// every transducer.
//
// A Modulation is an immutable sequence of 8-bit samples played back
// cyclically at its sampling frequency. Generators produce exactly one period
// of their waveform, truncated to the configured buffer size.
package modulation
