package controller

import (
	"testing"

	"github.com/arloliu/go-autd3/frame"
	"github.com/arloliu/go-autd3/gain"
	"github.com/stretchr/testify/require"
)

// decodeGain returns the drive carried by a recorded frame, all devices
// concatenated.
func decodeGain(t *testing.T, rec []byte) []gain.TransducerState {
	t.Helper()

	f, err := frame.Wrap(rec)
	require.NoError(t, err)

	var states []gain.TransducerState
	for dev := range f.NumDevices() {
		states = append(states, f.Gain(dev)...)
	}

	return states
}
