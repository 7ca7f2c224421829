package events

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
	"github.com/onronder/ContentLabTech-sub011/internal/queue"
)

var _ = Describe("producer", Ordered, func() {
	Context("write", func() {
		It("writes successfully", func() {
			w := newTestWriter()
			ep := NewEventProducer(w, WithOutputTopic("jobs"))

			Expect(ep.Write(context.TODO(), completedKind, "projects/p1", bytes.NewReader([]byte(`{"a":1}`)))).To(Succeed())
			Expect(ep.Write(context.TODO(), JobEventKind("failed"), "", bytes.NewReader([]byte(`{"a":2}`)))).To(Succeed())

			Eventually(w.Len).WithTimeout(2 * time.Second).Should(Equal(2))
			msgs := w.Events()
			Expect(msgs[0].Type()).To(Equal(completedKind))
			Expect(msgs[0].Subject()).To(Equal("projects/p1"))
			Expect(msgs[0].Source()).To(Equal(defaultSource))
			Expect(msgs[1].Subject()).To(BeEmpty())
			Expect(w.Topics()).To(ConsistOf("jobs", "jobs"))

			Expect(ep.Close()).To(Succeed())
			Expect(w.Closed()).To(BeTrue())
		})

		It("flushes buffered events on close", func() {
			w := newTestWriter()
			w.delay = 10 * time.Millisecond
			ep := NewEventProducer(w)

			for i := 0; i < 5; i++ {
				Expect(ep.Write(context.TODO(), completedKind, "", bytes.NewReader([]byte(`{}`)))).To(Succeed())
			}
			Expect(ep.Close()).To(Succeed())
			Expect(w.Len()).To(Equal(5))
		})

		It("does not block when written after close", func() {
			w := newTestWriter()
			ep := NewEventProducer(w)
			Expect(ep.Close()).To(Succeed())

			done := make(chan struct{})
			go func() {
				defer close(done)
				_ = ep.Write(context.TODO(), completedKind, "", bytes.NewReader([]byte(`{}`)))
			}()
			Eventually(done).Should(BeClosed())
		})
	})

	Context("queue hook", func() {
		It("publishes job transitions", func() {
			w := newTestWriter()
			ep := NewEventProducer(w)
			hook := QueueHook(ep)

			job := &analysis.Job{
				ID:       uuid.New(),
				Type:     analysis.JobTypeSEOHealth,
				Status:   analysis.StatusFailed,
				Priority: analysis.PriorityHigh,
				Data:     analysis.JobData{ProjectID: "p1", TeamID: "t1", UserID: "u1"},
				Error:    "boom",
			}
			hook(queue.Transition{Event: queue.EventFailed, From: analysis.StatusProcessing, Job: job})

			Eventually(w.Len).Should(Equal(1))
			e := w.Events()[0]
			Expect(e.Type()).To(Equal("contentlab.analysis.job.failed"))
			Expect(e.Subject()).To(Equal("projects/p1/jobs/" + job.ID.String()))

			var got JobEvent
			Expect(json.Unmarshal(e.Data(), &got)).To(Succeed())
			Expect(got.JobID).To(Equal(job.ID))
			Expect(got.Status).To(Equal(analysis.StatusFailed))
			Expect(got.From).To(Equal(analysis.StatusProcessing))
			Expect(got.TeamID).To(Equal("t1"))
			Expect(got.Error).To(Equal("boom"))

			Expect(ep.Close()).To(Succeed())
		})
	})
})

type testwriter struct {
	mu     sync.Mutex
	events []cloudevents.Event
	topics []string
	closed bool
	delay  time.Duration
}

func newTestWriter() *testwriter {
	return &testwriter{}
}

func (t *testwriter) Write(_ context.Context, topic string, e cloudevents.Event) error {
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
	t.topics = append(t.topics, topic)
	return nil
}

func (t *testwriter) Close(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *testwriter) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

func (t *testwriter) Events() []cloudevents.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]cloudevents.Event(nil), t.events...)
}

func (t *testwriter) Topics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.topics...)
}

func (t *testwriter) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
