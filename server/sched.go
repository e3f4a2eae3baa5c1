/******************************************************************************
 *
 *  Description :
 *
 *    Scheduling of delayed actions. Command results and power state
 *    transitions happen after a configurable delay; tests substitute a
 *    synchronous implementation.
 *
 *****************************************************************************/

package main

import "time"

// Scheduler runs a function after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

// timerScheduler is the production Scheduler backed by time.AfterFunc.
type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// syncScheduler runs scheduled functions immediately on the calling
// goroutine. Used in tests.
type syncScheduler struct{}

func (syncScheduler) AfterFunc(_ time.Duration, f func()) {
	f()
}
