package engine

import "time"

// timerToken identifies one armed deadline so it can be disarmed.
type timerToken interface {
	Stop() bool
}

// armTimer schedules fn after d on the runtime timer heap.
func armTimer(d time.Duration, fn func()) timerToken {
	return time.AfterFunc(d, fn)
}

// disarmTimer cancels an armed deadline. Nil tokens are ignored.
func disarmTimer(tok timerToken) {
	if tok != nil {
		tok.Stop()
	}
}
