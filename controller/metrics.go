package controller

import "sync/atomic"

// Metrics contains atomic counters of a controller.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// CycleCount indicates the number of bus cycles run.
	CycleCount atomic.Uint64
	// FrameSendCount indicates the number of distinct frames put on the bus.
	FrameSendCount atomic.Uint64
	// AckCount indicates the number of synchronous frames acknowledged by every device.
	AckCount atomic.Uint64
	// AckTimeoutCount indicates the number of synchronous frames not acknowledged in time.
	AckTimeoutCount atomic.Uint64
	// SendErrCount indicates the number of link send or receive failures.
	SendErrCount atomic.Uint64
	// BuildErrCount indicates the number of appended requests whose frames could not be built.
	BuildErrCount atomic.Uint64
	// CalibrationRetryCount indicates the number of repeated calibration round trips.
	CalibrationRetryCount atomic.Uint64
	// InflightGauge indicates the number of frames waiting for an acknowledge.
	InflightGauge atomic.Int64
}

func (m *Metrics) incCycleCount() {
	m.CycleCount.Add(1)
}

func (m *Metrics) incFrameSendCount() {
	m.FrameSendCount.Add(1)
}

func (m *Metrics) incAckCount() {
	m.AckCount.Add(1)
}

func (m *Metrics) incAckTimeoutCount() {
	m.AckTimeoutCount.Add(1)
}

func (m *Metrics) incSendErrCount() {
	m.SendErrCount.Add(1)
}

func (m *Metrics) incBuildErrCount() {
	m.BuildErrCount.Add(1)
}

func (m *Metrics) incCalibrationRetryCount() {
	m.CalibrationRetryCount.Add(1)
}

func (m *Metrics) incInflightGauge() {
	m.InflightGauge.Add(1)
}

func (m *Metrics) decInflightGauge() {
	m.InflightGauge.Add(-1)
}
