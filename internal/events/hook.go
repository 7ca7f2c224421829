package events

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/onronder/ContentLabTech-sub011/internal/queue"
)

// QueueHook publishes every job transition of the queue through ep.
func QueueHook(ep *EventProducer) queue.Hook {
	return func(t queue.Transition) {
		ev := newJobEvent(t.Job, t.From, time.Now().UTC())
		body, err := json.Marshal(ev)
		if err != nil {
			zap.S().Named("event_producer").Errorw("failed to encode job event", "error", err, "job_id", ev.JobID)
			return
		}
		if err := ep.Write(context.Background(), JobEventKind(string(t.Event)), ev.subject(), bytes.NewReader(body)); err != nil {
			zap.S().Named("event_producer").Errorw("failed to write job event", "error", err, "job_id", ev.JobID)
		}
	}
}
