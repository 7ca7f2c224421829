package queue_test

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
	"github.com/onronder/ContentLabTech-sub011/internal/config"
	"github.com/onronder/ContentLabTech-sub011/internal/queue"
	st "github.com/onronder/ContentLabTech-sub011/internal/store"
)

var _ = Describe("Queue with record store", Ordered, func() {
	var (
		ctx    context.Context
		store  st.Store
		gormDB *gorm.DB
		clock  *fakeClock
	)

	BeforeAll(func() {
		ctx = context.TODO()
		db, err := st.InitDB(config.NewDefault())
		Expect(err).To(BeNil())
		gormDB = db
		store = st.NewStore(db)
		Expect(store.InitialMigration(ctx)).To(Succeed())
	})

	AfterAll(func() {
		store.Close()
	})

	BeforeEach(func() {
		clock = newFakeClock()
	})

	AfterEach(func() {
		gormDB.Exec("DELETE FROM processing_jobs;")
	})

	newQueue := func() *queue.Queue {
		return queue.New(registry(),
			queue.WithRecorder(store.Job()),
			queue.WithClock(clock.Now),
			queue.WithTimeoutMultiplier(3),
		)
	}

	It("writes every transition through", func() {
		q := newQueue()
		job, err := q.Enqueue(ctx, analysis.JobTypeSEOHealth, seoData("p1"), analysis.PriorityHigh)
		Expect(err).To(BeNil())

		rec, err := store.Job().Get(ctx, job.ID)
		Expect(err).To(BeNil())
		Expect(rec.Status).To(Equal("pending"))
		Expect(rec.ProjectID).To(Equal("p1"))
		Expect(rec.UserID).To(Equal("user-1"))
		enqueuedRevision := rec.Revision

		_, ok := q.Claim(ctx, "worker-1")
		Expect(ok).To(BeTrue())
		Expect(q.UpdateProgress(ctx, job.ID, 40, "crawling")).To(Succeed())
		_, err = q.Complete(ctx, job.ID, analysis.Succeeded(map[string]int{"overallScore": 77}, nil))
		Expect(err).To(BeNil())

		rec, err = store.Job().Get(ctx, job.ID)
		Expect(err).To(BeNil())
		Expect(rec.Status).To(Equal("completed"))
		Expect(rec.Progress).To(Equal(100))
		Expect(*rec.WorkerID).To(Equal("worker-1"))
		Expect(rec.Revision).To(BeNumerically(">", enqueuedRevision))

		var result map[string]int
		Expect(json.Unmarshal(rec.ResultData, &result)).To(Succeed())
		Expect(result["overallScore"]).To(Equal(77))
	})

	It("records failures with their message", func() {
		q := newQueue()
		job, err := q.Enqueue(ctx, analysis.JobTypeSEOHealth, seoData("p1"), analysis.PriorityHigh)
		Expect(err).To(BeNil())
		_, ok := q.Claim(ctx, "worker-1")
		Expect(ok).To(BeTrue())
		_, err = q.Fail(ctx, job.ID, queue.Failure{Message: "dial tcp: no such host", Retryable: true})
		Expect(err).To(BeNil())

		rec, err := store.Job().Get(ctx, job.ID)
		Expect(err).To(BeNil())
		Expect(rec.Status).To(Equal("pending"))
		Expect(rec.RetryCount).To(Equal(1))
		Expect(rec.RetryAfter).ToNot(BeNil())
		Expect(*rec.ErrorMessage).To(Equal("dial tcp: no such host"))
	})

	It("recovers jobs after a restart", func() {
		before := newQueue()
		low, err := before.Enqueue(ctx, analysis.JobTypeSEOHealth, seoData("p1"), analysis.PriorityLow)
		Expect(err).To(BeNil())
		running, err := before.Enqueue(ctx, analysis.JobTypeSEOHealth, seoData("p1"), analysis.PriorityCritical)
		Expect(err).To(BeNil())
		high, err := before.Enqueue(ctx, analysis.JobTypeSEOHealth, seoData("p1"), analysis.PriorityHigh)
		Expect(err).To(BeNil())
		claimed, ok := before.Claim(ctx, "worker-1")
		Expect(ok).To(BeTrue())
		Expect(claimed.ID).To(Equal(running.ID))

		// seo-health with three pages and both options is estimated at 180s, the deadline is 540s
		clock.Advance(time.Minute)
		after := newQueue()
		loaded, err := after.Recover(ctx)
		Expect(err).To(BeNil())
		Expect(loaded).To(Equal(3))

		stats := after.Stats()
		Expect(stats.Pending).To(Equal(2))
		Expect(stats.Processing).To(Equal(1))

		next, ok := after.Claim(ctx, "worker-2")
		Expect(ok).To(BeTrue())
		Expect(next.ID).To(Equal(high.ID))
		Expect(next.Data.Params).To(BeAssignableToTypeOf(analysis.SEOHealthParams{}))

		Expect(after.ReapOrphans(ctx)).To(Equal(0))
		clock.Advance(10 * time.Minute)
		Expect(after.ReapOrphans(ctx)).To(Equal(1))

		orphan, err := after.Get(running.ID)
		Expect(err).To(BeNil())
		Expect(orphan.Status).To(Equal(analysis.StatusPending))
		Expect(orphan.RetryCount).To(Equal(0))

		next, ok = after.Claim(ctx, "worker-2")
		Expect(ok).To(BeTrue())
		Expect(next.ID).To(Equal(running.ID))
		next, ok = after.Claim(ctx, "worker-2")
		Expect(ok).To(BeTrue())
		Expect(next.ID).To(Equal(low.ID))
	})

	It("resets processing jobs past their deadline", func() {
		before := newQueue()
		job, err := before.Enqueue(ctx, analysis.JobTypeSEOHealth, seoData("p1"), analysis.PriorityHigh)
		Expect(err).To(BeNil())
		_, ok := before.Claim(ctx, "worker-1")
		Expect(ok).To(BeTrue())

		clock.Advance(time.Hour)
		after := newQueue()
		_, err = after.Recover(ctx)
		Expect(err).To(BeNil())

		rec, err := store.Job().Get(ctx, job.ID)
		Expect(err).To(BeNil())
		Expect(rec.Status).To(Equal("pending"))
		Expect(rec.WorkerID).To(BeNil())

		next, ok := after.Claim(ctx, "worker-2")
		Expect(ok).To(BeTrue())
		Expect(next.ID).To(Equal(job.ID))
	})

	It("loads recent history and skips jobs already known", func() {
		before := newQueue()
		job, err := before.Enqueue(ctx, analysis.JobTypeSEOHealth, seoData("p1"), analysis.PriorityHigh)
		Expect(err).To(BeNil())
		_, err = before.Cancel(ctx, job.ID)
		Expect(err).To(BeNil())

		after := newQueue()
		loaded, err := after.Recover(ctx)
		Expect(err).To(BeNil())
		Expect(loaded).To(Equal(1))
		Expect(after.Stats().Cancelled).To(Equal(1))

		loaded, err = after.Recover(ctx)
		Expect(err).To(BeNil())
		Expect(loaded).To(Equal(0))
	})

	It("needs a record store", func() {
		_, err := queue.New(registry()).Recover(ctx)
		Expect(err).ToNot(BeNil())
	})
})
