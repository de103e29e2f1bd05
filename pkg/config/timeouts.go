package config

import "time"

// TimeoutConfig carries the heartbeat and idle-timeout knobs the resource
// manager needs for both sides of its registration tables. It generalizes
// the teacher's single worker-timeout struct into separate task-executor
// and job-manager pairs, since the two have independent heartbeat loops.
type TimeoutConfig struct {
	TaskManagerHeartbeatInterval time.Duration
	TaskManagerHeartbeatTimeout  time.Duration

	JobManagerHeartbeatInterval time.Duration
	JobManagerHeartbeatTimeout  time.Duration

	// JobTimeout bounds how long a job may go without a registered job
	// manager before its job-leader-id entry is dropped.
	JobTimeout time.Duration

	HeartbeatCheckLoopInterval time.Duration
}

var defaultTimeoutConfig = TimeoutConfig{
	TaskManagerHeartbeatInterval: time.Second * 3,
	TaskManagerHeartbeatTimeout:  time.Second * 15,

	JobManagerHeartbeatInterval: time.Second * 3,
	JobManagerHeartbeatTimeout:  time.Second * 15,

	JobTimeout: time.Minute * 5,

	HeartbeatCheckLoopInterval: time.Millisecond * 10,
}.Adjust()

// Adjust validates the TimeoutConfig and fixes up any timeout that is too
// short relative to its own heartbeat interval to ever fire reliably.
func (c TimeoutConfig) Adjust() TimeoutConfig {
	if c.TaskManagerHeartbeatTimeout < 2*c.TaskManagerHeartbeatInterval+time.Second*3 {
		c.TaskManagerHeartbeatTimeout = 2*c.TaskManagerHeartbeatInterval + time.Second*3
	}
	if c.JobManagerHeartbeatTimeout < 2*c.JobManagerHeartbeatInterval+time.Second*3 {
		c.JobManagerHeartbeatTimeout = 2*c.JobManagerHeartbeatInterval + time.Second*3
	}
	if c.HeartbeatCheckLoopInterval <= 0 {
		c.HeartbeatCheckLoopInterval = time.Millisecond * 10
	}
	return c
}

// DefaultTimeoutConfig returns the package's adjusted defaults.
func DefaultTimeoutConfig() TimeoutConfig {
	return defaultTimeoutConfig
}
