package notifier

import "time"

// Config controls delivery pacing. Zero values take defaults; RetryMax 0
// means a single attempt.
type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// SendTimeout bounds a single delivery attempt.
	SendTimeout time.Duration
	ThreadID    int
}

// Result is the outcome of delivering to one chat.
type Result struct {
	ChatID    string
	OK        bool
	Attempts  int
	MessageID int
	Err       error
}

// Report collects the per-chat results of one Send, in recipient order.
type Report struct {
	Results []Result
}

// Delivered mirrors the per-recipient success map callers log and count.
func (r Report) Delivered() map[string]bool {
	out := make(map[string]bool, len(r.Results))
	for _, res := range r.Results {
		out[res.ChatID] = res.OK
	}
	return out
}

func (r Report) Sent() int {
	n := 0
	for _, res := range r.Results {
		if res.OK {
			n++
		}
	}
	return n
}

func (r Report) Failed() int { return len(r.Results) - r.Sent() }
