package dispatcher_test

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
	"github.com/onronder/ContentLabTech-sub011/internal/dispatcher"
	"github.com/onronder/ContentLabTech-sub011/internal/processor"
	"github.com/onronder/ContentLabTech-sub011/internal/queue"
	"github.com/onronder/ContentLabTech-sub011/internal/results"
)

var _ = Describe("Dispatcher", func() {
	var (
		ctx     context.Context
		fake    *fakeProcessor
		q       *queue.Queue
		store   *results.Store
		d       *dispatcher.Dispatcher
		workers int
		reaper  time.Duration
	)

	BeforeEach(func() {
		ctx = context.TODO()
		workers = 2
		reaper = 50 * time.Millisecond
		fake = &fakeProcessor{estimate: 100 * time.Millisecond}
	})

	start := func() {
		registry := processor.NewRegistry()
		registry.Register(fake)
		q = queue.New(registry,
			queue.WithCapacity(workers),
			queue.WithMaxRetries(2),
			queue.WithBackoff(time.Hour, time.Hour),
			queue.WithTimeoutMultiplier(3),
		)
		store = results.NewStore()
		d = dispatcher.New(q, registry, store, dispatcher.WithReaperInterval(reaper))
		d.Start(ctx)
		DeferCleanup(func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = d.Stop(stopCtx)
		})
	}

	submit := func() uuid.UUID {
		job, err := q.Enqueue(ctx, analysis.JobTypeSEOHealth, seoData("p1"), analysis.PriorityHigh)
		Expect(err).To(BeNil())
		return job.ID
	}

	statusOf := func(id uuid.UUID) func() analysis.Status {
		return func() analysis.Status {
			job, err := q.Get(id)
			Expect(err).To(BeNil())
			return job.Status
		}
	}

	It("completes successful jobs and stores their result", func() {
		fake.process = func(ctx context.Context, job *analysis.Job, progress processor.ProgressFunc) (*analysis.JobResult, error) {
			progress(50, "half way")
			return analysis.Succeeded(&processor.SEOHealthReport{OverallScore: 88}, nil), nil
		}
		start()
		id := submit()

		Eventually(statusOf(id)).Should(Equal(analysis.StatusCompleted))
		job, _ := q.Get(id)
		Expect(job.Progress).To(Equal(100))

		Eventually(func() *analysis.ResultEntry {
			entry, _ := store.Latest(ctx, "p1", analysis.JobTypeSEOHealth)
			return entry
		}).ShouldNot(BeNil())
		entry, _ := store.Latest(ctx, "p1", analysis.JobTypeSEOHealth)
		Expect(entry.JobID).To(Equal(id))
		Expect(entry.Data.(processor.ScoredReport).Overall()).To(Equal(88))
	})

	It("reports progress while the processor runs", func() {
		release := make(chan struct{})
		fake.estimate = time.Second
		fake.process = func(ctx context.Context, job *analysis.Job, progress processor.ProgressFunc) (*analysis.JobResult, error) {
			progress(40, "crawling pages")
			<-release
			return analysis.Succeeded(&processor.SEOHealthReport{}, nil), nil
		}
		start()
		id := submit()

		Eventually(func() int {
			job, _ := q.Get(id)
			return job.Progress
		}).Should(Equal(40))
		job, _ := q.Get(id)
		Expect(job.ProgressMessage).To(Equal("crawling pages"))
		close(release)
		Eventually(statusOf(id)).Should(Equal(analysis.StatusCompleted))
	})

	It("requeues retryable failures with a backoff", func() {
		fake.process = func(context.Context, *analysis.Job, processor.ProgressFunc) (*analysis.JobResult, error) {
			return analysis.Failed("dial tcp: lookup example.invalid: no such host", true), nil
		}
		start()
		id := submit()

		Eventually(func() int {
			job, _ := q.Get(id)
			return job.RetryCount
		}).Should(Equal(1))
		job, _ := q.Get(id)
		Expect(job.Status).To(Equal(analysis.StatusPending))
		Expect(job.RetryAfter).ToNot(BeNil())
		Expect(time.Until(*job.RetryAfter)).To(BeNumerically(">", 50*time.Minute))
	})

	It("fails non-retryable results", func() {
		fake.process = func(context.Context, *analysis.Job, processor.ProgressFunc) (*analysis.JobResult, error) {
			return analysis.Failed("invalid target", false), nil
		}
		start()
		id := submit()

		Eventually(statusOf(id)).Should(Equal(analysis.StatusFailed))
		job, _ := q.Get(id)
		Expect(job.Error).To(Equal("invalid target"))
		Expect(job.RetryCount).To(Equal(0))
	})

	It("turns a panic into a fatal failure and keeps working", func() {
		var calls atomic.Int32
		fake.process = func(context.Context, *analysis.Job, processor.ProgressFunc) (*analysis.JobResult, error) {
			if calls.Add(1) == 1 {
				panic("index out of range")
			}
			return analysis.Succeeded(&processor.SEOHealthReport{}, nil), nil
		}
		workers = 1
		start()
		first := submit()
		second := submit()

		Eventually(statusOf(first)).Should(Equal(analysis.StatusFailed))
		job, _ := q.Get(first)
		Expect(job.Error).To(ContainSubstring("panicked"))
		Expect(job.RetryCount).To(Equal(0))
		Eventually(statusOf(second)).Should(Equal(analysis.StatusCompleted))
	})

	It("fails returned errors without retrying", func() {
		fake.process = func(context.Context, *analysis.Job, processor.ProgressFunc) (*analysis.JobResult, error) {
			return nil, context.Canceled
		}
		start()
		id := submit()

		Eventually(statusOf(id)).Should(Equal(analysis.StatusFailed))
		job, _ := q.Get(id)
		Expect(job.RetryCount).To(Equal(0))
	})

	It("fails jobs past their deadline as non-retryable timeouts", func() {
		fake.estimate = 20 * time.Millisecond
		fake.process = func(ctx context.Context, job *analysis.Job, progress processor.ProgressFunc) (*analysis.JobResult, error) {
			<-ctx.Done()
			return analysis.Failed("context deadline exceeded", true), nil
		}
		start()
		id := submit()

		Eventually(statusOf(id)).Should(Equal(analysis.StatusFailed))
		job, _ := q.Get(id)
		Expect(job.Error).To(ContainSubstring("timed out after 60ms"))
		Expect(job.RetryCount).To(Equal(0))
	})

	It("times out processors that ignore their context", func() {
		fake.estimate = 10 * time.Millisecond
		block := make(chan struct{})
		DeferCleanup(func() { close(block) })
		fake.process = func(context.Context, *analysis.Job, processor.ProgressFunc) (*analysis.JobResult, error) {
			<-block
			return analysis.Succeeded(&processor.SEOHealthReport{}, nil), nil
		}
		start()
		id := submit()

		Eventually(statusOf(id)).Should(Equal(analysis.StatusFailed))
	})

	It("cancels running jobs and drops their outcome", func() {
		started := make(chan struct{})
		fake.estimate = time.Minute
		fake.process = func(ctx context.Context, job *analysis.Job, progress processor.ProgressFunc) (*analysis.JobResult, error) {
			close(started)
			<-ctx.Done()
			return analysis.Succeeded(&processor.SEOHealthReport{}, nil), nil
		}
		start()
		id := submit()

		Eventually(started).Should(BeClosed())
		_, err := q.Cancel(ctx, id)
		Expect(err).To(BeNil())

		Consistently(statusOf(id), 100*time.Millisecond).Should(Equal(analysis.StatusCancelled))
		entry, _ := store.Latest(ctx, "p1", analysis.JobTypeSEOHealth)
		Expect(entry).To(BeNil())
	})

	It("never runs more jobs than its workers", func() {
		var running, peak atomic.Int32
		fake.process = func(context.Context, *analysis.Job, processor.ProgressFunc) (*analysis.JobResult, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return analysis.Succeeded(&processor.SEOHealthReport{}, nil), nil
		}
		start()
		var ids []uuid.UUID
		for i := 0; i < 6; i++ {
			ids = append(ids, submit())
		}

		for _, id := range ids {
			Eventually(statusOf(id)).Should(Equal(analysis.StatusCompleted))
		}
		Expect(peak.Load()).To(BeNumerically("<=", 2))
		Expect(q.Stats().Completed).To(Equal(6))
	})

	It("releases running jobs when stopping runs out of time", func() {
		started := make(chan struct{})
		fake.estimate = time.Minute
		fake.process = func(ctx context.Context, job *analysis.Job, progress processor.ProgressFunc) (*analysis.JobResult, error) {
			close(started)
			<-ctx.Done()
			return analysis.Failed("interrupted", true), nil
		}
		start()
		id := submit()
		Eventually(started).Should(BeClosed())

		stopCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		Expect(d.Stop(stopCtx)).To(MatchError(context.DeadlineExceeded))

		job, err := q.Get(id)
		Expect(err).To(BeNil())
		Expect(job.Status).To(Equal(analysis.StatusPending))
		Expect(job.RetryCount).To(Equal(0))
	})

	It("keeps the default reaper interval when given a non-positive one", func() {
		reaper = 0
		start()
		id := submit()
		Eventually(statusOf(id)).Should(Equal(analysis.StatusCompleted))
	})

	It("stops cleanly when idle", func() {
		start()
		stopCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		Expect(d.Stop(stopCtx)).To(Succeed())
	})
})
