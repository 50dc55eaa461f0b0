package miner

import "time"

const (
	idleInterval   = 2 * time.Second
	retryDelay     = time.Second
	failureBackoff = 5 * time.Second
)
