package config

import "time"

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Backing store ping timeout at startup
const PingTimeout = 5 * time.Second

// Background job intervals
const MaintenanceJobInterval = 5 * time.Minute

// Attempts at drawing a code that does not collide with a live one
const MaxCodeDrawAttempts = 10
