package transport

import "time"

// SetSleep replaces the link's sleep function so tests do not wait.
func (l *Link) SetSleep(fn func(time.Duration)) {
	l.sleep = fn
}
