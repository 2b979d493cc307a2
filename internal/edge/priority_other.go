//go:build !linux

package edge

// raiseSchedulingPriority is a no-op outside Linux: there is no portable
// equivalent to nice()-based priority elevation in the platforms this
// binary targets besides Linux.
func raiseSchedulingPriority() {}
