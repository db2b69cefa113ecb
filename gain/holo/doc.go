// Package holo implements multi-focus acoustic holograms.
//
// A Holo gain takes a set of foci with target amplitudes and computes the
// drive of every transducer with one of several solvers:
//
//   - SDP: semidefinite relaxation solved by block coordinate descent
//   - EVD: eigenvalue decomposition followed by a regularized least squares
//   - GS: Gerchberg-Saxton style iterative phase retrieval
//   - Greedy: per-transducer phase search over a discrete phase set
//   - Naive: regularized minimum norm least squares
//   - LM: Levenberg-Marquardt refinement of the transducer phases
//
// Every solver runs for at most its configured number of iterations and
// returns its best result; non-convergence is not reported as an error.
package holo
