//go:build darwin

package receive

import "github.com/prashantgupta24/mac-sleep-notifier/notifier"

// WakeListener starts listening for system sleep/wake notifications and
// triggers onWake on resume, the same way a per-camera reconnect hook would for
// its camera windows. The returned func stops the listener.
func (r *Receiver) WakeListener() func() {
	ch := notifier.GetInstance().Start()
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case activity, ok := <-ch:
				if !ok {
					return
				}
				if activity.Type == notifier.Awake {
					r.onWake()
				}
			}
		}
	}()
	return func() { close(stop) }
}
