// Package geometry describes the physical layout of an AUTD3 array.
//
// An array is an ordered list of devices. Every device carries the same fixed
// 18x14 grid of transducers with three positions left empty for mounting
// holes, giving NumTransInDevice transducers per device. Transducers are
// addressed either by (device, local index) or by a global index that runs
// over all devices in insertion order; gains produce one state per global
// index.
//
// Positions are expressed in millimetres in the global frame. A device is
// placed by the position of its first transducer and an orientation given
// either as ZYZ Euler angles or as a quaternion.
package geometry
