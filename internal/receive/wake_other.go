//go:build !darwin

package receive

// WakeListener is a no-op on platforms without a sleep/wake notifier (the
// teacher's darwin_stub.go does the same for its HandleSleep).
func (r *Receiver) WakeListener() func() {
	return func() {}
}
