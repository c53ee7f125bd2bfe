package pipeline

import (
	"time"

	"callaudit-server/pkg/artifact"
	"callaudit-server/pkg/fingerprint"
)

// StageEvent describes one completed stage operation. Events feed the
// websocket hub and the AMQP publisher; they are advisory and never fail a
// request.
type StageEvent struct {
	Stage       artifact.Stage          `json:"stage"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	VersionID   string                  `json:"version_id"`
	CacheHit    bool                    `json:"cache_hit"`
	Duration    time.Duration           `json:"duration"`
	Timestamp   time.Time               `json:"timestamp"`
}

// Notifier receives stage completion events.
type Notifier interface {
	NotifyStage(event StageEvent)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(event StageEvent)

// NotifyStage implements Notifier.
func (f NotifierFunc) NotifyStage(event StageEvent) {
	f(event)
}
