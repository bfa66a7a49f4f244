package receive

import (
	"log"
	"time"
)

// maybeScheduleReconnect implements auto-reconnect: on entering Error with
// auto-reconnect enabled, schedule a retry after reconnectDelay, up to
// reconnectMaxTries attempts per outage.
func (r *Receiver) maybeScheduleReconnect(sourceName string) {
	if !r.cfg.AutoReconnect || sourceName == "" {
		return
	}

	r.reconnectMu.Lock()
	defer r.reconnectMu.Unlock()

	if r.reconnectAttempt >= reconnectMaxTries {
		log.Printf("receive: giving up reconnecting to %q after %d attempts", sourceName, r.reconnectAttempt)
		return
	}
	r.reconnecting = true
	r.reconnectAttempt++
	attempt := r.reconnectAttempt
	cancel := make(chan struct{})
	r.reconnectCancel = cancel

	r.reconnectTimer = time.AfterFunc(reconnectDelay, func() {
		select {
		case <-cancel:
			return
		default:
		}
		log.Printf("receive: auto-reconnect attempt %d/%d to %q", attempt, reconnectMaxTries, sourceName)
		if err := r.Connect(sourceName); err != nil {
			log.Printf("receive: reconnect attempt %d failed: %v", attempt, err)
		}
	})
}

// cancelReconnect clears any pending reconnect job and the reconnecting
// flag. It leaves the attempt counter alone, so the per-outage cap holds
// across the Connect calls the retries themselves make; only
// resetReconnectOnSuccess resets the counter, and cancelling does not
// raise it to reconnectMaxTries.
func (r *Receiver) cancelReconnect() {
	r.reconnectMu.Lock()
	defer r.reconnectMu.Unlock()
	if r.reconnectTimer != nil {
		r.reconnectTimer.Stop()
		r.reconnectTimer = nil
	}
	if r.reconnectCancel != nil {
		close(r.reconnectCancel)
		r.reconnectCancel = nil
	}
	r.reconnecting = false
}

// resetReconnectOnSuccess is called once a connection reaches Connected,
// persisting it as "last connected" and resetting retry bookkeeping.
func (r *Receiver) resetReconnectOnSuccess(name, url string) {
	r.reconnectMu.Lock()
	r.reconnecting = false
	r.reconnectAttempt = 0
	r.reconnectMu.Unlock()

	r.mu.Lock()
	r.lastSourceName = name
	r.lastSourceURL = url
	r.mu.Unlock()
}

// LastConnected returns the name/URL persisted on the last successful
// connection, for the "last_source_name"/"last_source_url" preferences.
func (r *Receiver) LastConnected() (name, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSourceName, r.lastSourceURL
}

// onWake is called by the platform-specific wake listener (see
// wake_darwin.go / wake_other.go) whenever the system resumes from
// sleep: if the receiver is not Connected, retry the last known source
// immediately rather than waiting out the normal backoff, mirroring the
// teacher's OnResumeFromSleep.
func (r *Receiver) onWake() {
	if r.State() == StateConnected {
		return
	}
	name, _ := r.LastConnected()
	if name == "" {
		return
	}
	log.Printf("receive: system woke, reconnecting to %q", name)
	if err := r.Connect(name); err != nil {
		log.Printf("receive: wake-triggered reconnect failed: %v", err)
	}
}
