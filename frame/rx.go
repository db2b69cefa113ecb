package frame

import "fmt"

// Rx is one device input record.
type Rx struct {
	// Ack echoes the message id of the last frame the device latched.
	Ack uint8
	// Data carries the reply of read commands.
	Data uint8
}

// ParseRx decodes the input records of numDevices devices.
func ParseRx(buf []byte, numDevices int) ([]Rx, error) {
	if len(buf) < numDevices*RxSize {
		return nil, fmt.Errorf("%w: %d bytes for %d devices", ErrRxTooShort, len(buf), numDevices)
	}

	rx := make([]Rx, numDevices)
	for i := range rx {
		rx[i] = Rx{Ack: buf[i*RxSize], Data: buf[i*RxSize+1]}
	}

	return rx, nil
}

// PutRx encodes rx into buf.
func PutRx(buf []byte, rx []Rx) {
	for i, r := range rx {
		buf[i*RxSize] = r.Ack
		buf[i*RxSize+1] = r.Data
	}
}

// AllAcked reports whether every device acknowledged msgID.
func AllAcked(rx []Rx, msgID uint8) bool {
	for _, r := range rx {
		if r.Ack != msgID {
			return false
		}
	}

	return len(rx) > 0
}
