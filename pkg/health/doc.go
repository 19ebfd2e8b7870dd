// Package health classifies fleet node snapshots into health verdicts.
// Classification is a pure function of the snapshot: no I/O, no state.
package health
