package session

import "errors"

var ErrTimerPending = errors.New("grace_timer_pending")
