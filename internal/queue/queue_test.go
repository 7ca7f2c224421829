package queue_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
	"github.com/onronder/ContentLabTech-sub011/internal/queue"
)

var _ = Describe("Queue", func() {
	var (
		ctx   context.Context
		clock *fakeClock
		q     *queue.Queue
	)

	BeforeEach(func() {
		ctx = context.TODO()
		clock = newFakeClock()
		q = queue.New(registry(),
			queue.WithCapacity(4),
			queue.WithMaxRetries(2),
			queue.WithBackoff(30*time.Second, 10*time.Minute),
			queue.WithClock(clock.Now),
		)
	})

	enqueue := func(priority analysis.Priority) *analysis.Job {
		job, err := q.Enqueue(ctx, analysis.JobTypeSEOHealth, seoData("p1"), priority)
		Expect(err).To(BeNil())
		return job
	}

	claim := func() *analysis.Job {
		job, ok := q.Claim(ctx, "worker-1")
		Expect(ok).To(BeTrue())
		return job
	}

	Context("enqueue", func() {
		It("rejects invalid params without creating a job", func() {
			data := seoData("p1")
			data.Params = analysis.SEOHealthParams{WebsiteURL: "https://example.com"}
			_, err := q.Enqueue(ctx, analysis.JobTypeSEOHealth, data, analysis.PriorityHigh)

			var verr *analysis.ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
			Expect(q.Stats().Total).To(Equal(0))
		})

		It("creates a pending job with medium priority by default", func() {
			job := enqueue("")
			Expect(job.ID).ToNot(Equal(uuid.Nil))
			Expect(job.Status).To(Equal(analysis.StatusPending))
			Expect(job.Priority).To(Equal(analysis.PriorityMedium))
			Expect(job.MaxRetries).To(Equal(2))
			Expect(job.CreatedAt).To(Equal(clock.Now()))
		})
	})

	Context("claim", func() {
		It("follows priority order, FIFO within a priority", func() {
			low := enqueue(analysis.PriorityLow)
			medium := enqueue(analysis.PriorityMedium)
			critical1 := enqueue(analysis.PriorityCritical)
			high := enqueue(analysis.PriorityHigh)
			critical2 := enqueue(analysis.PriorityCritical)

			var order []uuid.UUID
			for {
				job, ok := q.Claim(ctx, "worker-1")
				if !ok {
					break
				}
				order = append(order, job.ID)
			}
			Expect(order).To(Equal([]uuid.UUID{critical1.ID, critical2.ID, high.ID, medium.ID, low.ID}))
		})

		It("marks the job processing", func() {
			enqueue(analysis.PriorityHigh)
			job := claim()
			Expect(job.Status).To(Equal(analysis.StatusProcessing))
			Expect(job.WorkerID).To(Equal("worker-1"))
			Expect(job.StartedAt).ToNot(BeNil())
		})

		It("hands a job to one caller only", func() {
			enqueue(analysis.PriorityHigh)

			var wg sync.WaitGroup
			var mu sync.Mutex
			wins := 0
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, ok := q.Claim(ctx, "w"); ok {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			Expect(wins).To(Equal(1))
		})

		It("never claims a job twice under concurrent workers", func() {
			for i := 0; i < 50; i++ {
				enqueue(analysis.Priorities[i%len(analysis.Priorities)])
			}

			var wg sync.WaitGroup
			var mu sync.Mutex
			seen := map[uuid.UUID]int{}
			for w := 0; w < 8; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						job, ok := q.Claim(ctx, "w")
						if !ok {
							return
						}
						mu.Lock()
						seen[job.ID]++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Expect(seen).To(HaveLen(50))
			for _, n := range seen {
				Expect(n).To(Equal(1))
			}
			Expect(q.Stats().Processing).To(Equal(50))
		})
	})

	Context("retries", func() {
		It("requeues retryable failures until the budget is used, then fails", func() {
			job := enqueue(analysis.PriorityHigh)

			claim()
			failed, err := q.Fail(ctx, job.ID, queue.Failure{Message: "connection reset", Retryable: true})
			Expect(err).To(BeNil())
			Expect(failed.Status).To(Equal(analysis.StatusPending))
			Expect(failed.RetryCount).To(Equal(1))
			Expect(*failed.RetryAfter).To(Equal(clock.Now().Add(30 * time.Second)))
			Expect(failed.Error).To(Equal("connection reset"))
			Expect(failed.RetryPending()).To(BeTrue())

			// backoff not over yet
			_, ok := q.Claim(ctx, "worker-1")
			Expect(ok).To(BeFalse())
			clock.Advance(30 * time.Second)
			claim()

			failed, err = q.Fail(ctx, job.ID, queue.Failure{Message: "connection reset", Retryable: true})
			Expect(err).To(BeNil())
			Expect(failed.RetryCount).To(Equal(2))
			Expect(*failed.RetryAfter).To(Equal(clock.Now().Add(60 * time.Second)))

			clock.Advance(time.Minute)
			claim()
			failed, err = q.Fail(ctx, job.ID, queue.Failure{Message: "connection reset", Retryable: true})
			Expect(err).To(BeNil())
			Expect(failed.Status).To(Equal(analysis.StatusFailed))
			Expect(failed.RetryCount).To(Equal(2))
			Expect(failed.RetryAfter).To(BeNil())
			Expect(failed.CompletedAt).ToNot(BeNil())

			_, ok = q.Claim(ctx, "worker-1")
			Expect(ok).To(BeFalse())
		})

		It("keeps the default base for a non-positive backoff base", func() {
			q = queue.New(registry(), queue.WithBackoff(0, 10*time.Minute), queue.WithClock(clock.Now))
			job := enqueue(analysis.PriorityHigh)
			claim()

			failed, err := q.Fail(ctx, job.ID, queue.Failure{Message: "timeout", Retryable: true})
			Expect(err).To(BeNil())
			Expect(failed.RetryAfter.Sub(clock.Now())).To(Equal(30 * time.Second))
		})

		It("caps the backoff", func() {
			q = queue.New(registry(), queue.WithMaxRetries(5), queue.WithBackoff(time.Minute, 3*time.Minute), queue.WithClock(clock.Now))
			job := enqueue(analysis.PriorityHigh)

			var delays []time.Duration
			for i := 0; i < 4; i++ {
				claim()
				failed, err := q.Fail(ctx, job.ID, queue.Failure{Message: "timeout", Retryable: true})
				Expect(err).To(BeNil())
				delays = append(delays, failed.RetryAfter.Sub(clock.Now()))
				clock.Advance(10 * time.Minute)
			}
			Expect(delays).To(Equal([]time.Duration{time.Minute, 2 * time.Minute, 3 * time.Minute, 3 * time.Minute}))
		})

		It("honours a later retry time suggested by the processor", func() {
			job := enqueue(analysis.PriorityHigh)
			claim()
			later := clock.Now().Add(5 * time.Minute)
			failed, err := q.Fail(ctx, job.ID, queue.Failure{Message: "rate limited", Retryable: true, NotBefore: &later})
			Expect(err).To(BeNil())
			Expect(*failed.RetryAfter).To(Equal(later))
		})

		It("fails non-retryable errors right away", func() {
			job := enqueue(analysis.PriorityHigh)
			claim()
			failed, err := q.Fail(ctx, job.ID, queue.Failure{Message: "boom"})
			Expect(err).To(BeNil())
			Expect(failed.Status).To(Equal(analysis.StatusFailed))
			Expect(failed.RetryCount).To(Equal(0))
		})

		It("keeps higher priorities ahead of a job waiting out its backoff", func() {
			retried := enqueue(analysis.PriorityCritical)
			claim()
			_, err := q.Fail(ctx, retried.ID, queue.Failure{Message: "timeout", Retryable: true})
			Expect(err).To(BeNil())

			low := enqueue(analysis.PriorityLow)
			Expect(claim().ID).To(Equal(low.ID))

			clock.Advance(time.Minute)
			Expect(claim().ID).To(Equal(retried.ID))
		})
	})

	Context("completion", func() {
		It("completes a processing job once", func() {
			job := enqueue(analysis.PriorityHigh)
			claim()

			done, err := q.Complete(ctx, job.ID, analysis.Succeeded(map[string]int{"overallScore": 80}, nil))
			Expect(err).To(BeNil())
			Expect(done.Status).To(Equal(analysis.StatusCompleted))
			Expect(done.Progress).To(Equal(100))
			Expect(done.CompletedAt).ToNot(BeNil())

			_, err = q.Complete(ctx, job.ID, analysis.Succeeded(nil, nil))
			Expect(err).To(MatchError(queue.ErrInvalidTransition))
			_, err = q.Fail(ctx, job.ID, queue.Failure{Message: "late"})
			Expect(err).To(MatchError(queue.ErrInvalidTransition))
		})

		It("rejects pending jobs", func() {
			job := enqueue(analysis.PriorityHigh)
			_, err := q.Complete(ctx, job.ID, analysis.Succeeded(nil, nil))
			Expect(err).To(MatchError(queue.ErrInvalidTransition))
		})

		It("reports unknown jobs", func() {
			_, err := q.Complete(ctx, uuid.New(), analysis.Succeeded(nil, nil))
			Expect(err).To(MatchError(queue.ErrJobNotFound))
			_, err = q.Get(uuid.New())
			Expect(err).To(MatchError(queue.ErrJobNotFound))
		})
	})

	Context("progress", func() {
		It("clamps progress below 100 while processing", func() {
			job := enqueue(analysis.PriorityHigh)
			Expect(q.UpdateProgress(ctx, job.ID, 10, "early")).To(MatchError(queue.ErrInvalidTransition))

			claim()
			Expect(q.UpdateProgress(ctx, job.ID, 150, "almost")).To(Succeed())
			got, err := q.Get(job.ID)
			Expect(err).To(BeNil())
			Expect(got.Progress).To(Equal(99))
			Expect(got.ProgressMessage).To(Equal("almost"))

			Expect(q.UpdateProgress(ctx, job.ID, -5, "")).To(Succeed())
			got, _ = q.Get(job.ID)
			Expect(got.Progress).To(Equal(0))
		})
	})

	Context("cancel", func() {
		It("cancels a pending job", func() {
			job := enqueue(analysis.PriorityHigh)
			cancelled, err := q.Cancel(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(cancelled.Status).To(Equal(analysis.StatusCancelled))
			Expect(cancelled.CompletedAt).ToNot(BeNil())

			_, ok := q.Claim(ctx, "worker-1")
			Expect(ok).To(BeFalse())
		})

		It("cancels the context of a processing job and drops its outcome", func() {
			job := enqueue(analysis.PriorityHigh)
			claim()
			runCtx, cancel := context.WithCancel(context.Background())
			Expect(q.Track(job.ID, cancel)).To(Succeed())

			_, err := q.Cancel(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(runCtx.Err()).To(MatchError(context.Canceled))

			_, err = q.Complete(ctx, job.ID, analysis.Succeeded(nil, nil))
			Expect(err).To(MatchError(queue.ErrInvalidTransition))
			got, _ := q.Get(job.ID)
			Expect(got.Status).To(Equal(analysis.StatusCancelled))
		})

		It("refuses terminal jobs", func() {
			job := enqueue(analysis.PriorityHigh)
			claim()
			_, err := q.Complete(ctx, job.ID, analysis.Succeeded(nil, nil))
			Expect(err).To(BeNil())

			_, err = q.Cancel(ctx, job.ID)
			Expect(err).To(MatchError(queue.ErrInvalidTransition))
		})
	})

	Context("release", func() {
		It("keeps the FIFO place and the retry budget", func() {
			first := enqueue(analysis.PriorityHigh)
			enqueue(analysis.PriorityHigh)
			claim()

			released, err := q.Release(ctx, first.ID)
			Expect(err).To(BeNil())
			Expect(released.Status).To(Equal(analysis.StatusPending))
			Expect(released.RetryCount).To(Equal(0))
			Expect(claim().ID).To(Equal(first.ID))
		})
	})

	Context("next", func() {
		It("blocks until a job is enqueued", func() {
			q = queue.New(registry())
			got := make(chan *analysis.Job, 1)
			go func() {
				defer GinkgoRecover()
				job, err := q.Next(ctx, "worker-1")
				Expect(err).To(BeNil())
				got <- job
			}()

			Consistently(got, 50*time.Millisecond).ShouldNot(Receive())
			job, err := q.Enqueue(ctx, analysis.JobTypeSEOHealth, seoData("p1"), analysis.PriorityLow)
			Expect(err).To(BeNil())
			Eventually(got).Should(Receive(HaveField("ID", job.ID)))
		})

		It("waits out the backoff", func() {
			q = queue.New(registry(), queue.WithBackoff(100*time.Millisecond, time.Second))
			job, err := q.Enqueue(ctx, analysis.JobTypeSEOHealth, seoData("p1"), analysis.PriorityLow)
			Expect(err).To(BeNil())
			_, ok := q.Claim(ctx, "worker-1")
			Expect(ok).To(BeTrue())
			_, err = q.Fail(ctx, job.ID, queue.Failure{Message: "timeout", Retryable: true})
			Expect(err).To(BeNil())

			start := time.Now()
			next, err := q.Next(ctx, "worker-1")
			Expect(err).To(BeNil())
			Expect(next.ID).To(Equal(job.ID))
			Expect(time.Since(start)).To(BeNumerically(">=", 90*time.Millisecond))
		})

		It("returns when the context ends or the queue closes", func() {
			q = queue.New(registry())
			tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			_, err := q.Next(tctx, "worker-1")
			Expect(err).To(MatchError(context.DeadlineExceeded))

			go func() {
				time.Sleep(20 * time.Millisecond)
				q.Close()
			}()
			_, err = q.Next(ctx, "worker-1")
			Expect(err).To(MatchError(queue.ErrQueueClosed))

			_, err = q.Enqueue(ctx, analysis.JobTypeSEOHealth, seoData("p1"), analysis.PriorityLow)
			Expect(err).To(MatchError(queue.ErrQueueClosed))
		})
	})

	Context("stats and listing", func() {
		It("derives the counts from the jobs", func() {
			a := enqueue(analysis.PriorityHigh)
			b := enqueue(analysis.PriorityHigh)
			c := enqueue(analysis.PriorityLow)
			enqueue(analysis.PriorityLow)

			claim()
			_, err := q.Complete(ctx, a.ID, analysis.Succeeded(nil, nil))
			Expect(err).To(BeNil())
			claim()
			_, err = q.Fail(ctx, b.ID, queue.Failure{Message: "boom"})
			Expect(err).To(BeNil())
			claim()
			_, err = q.Cancel(ctx, c.ID)
			Expect(err).To(BeNil())

			Expect(q.Stats()).To(Equal(analysis.QueueStats{
				Total: 4, Pending: 1, Completed: 1, Failed: 1, Cancelled: 1, ProcessingCapacity: 4,
			}))
		})

		It("lists a project's jobs newest first", func() {
			first := enqueue(analysis.PriorityHigh)
			clock.Advance(time.Second)
			second := enqueue(analysis.PriorityHigh)
			_, err := q.Enqueue(ctx, analysis.JobTypeSEOHealth, seoData("p2"), analysis.PriorityHigh)
			Expect(err).To(BeNil())

			jobs := q.List("p1", 0)
			Expect(jobs).To(HaveLen(2))
			Expect(jobs[0].ID).To(Equal(second.ID))
			Expect(jobs[1].ID).To(Equal(first.ID))
			Expect(q.List("", 1)).To(HaveLen(1))
		})

		It("prunes old terminal jobs", func() {
			q = queue.New(registry(), queue.WithRetention(time.Hour), queue.WithClock(clock.Now))
			job := enqueue(analysis.PriorityHigh)
			enqueue(analysis.PriorityHigh)
			claim()
			_, err := q.Complete(ctx, job.ID, analysis.Succeeded(nil, nil))
			Expect(err).To(BeNil())

			Expect(q.Prune()).To(Equal(0))
			clock.Advance(2 * time.Hour)
			Expect(q.Prune()).To(Equal(1))
			Expect(q.Stats().Total).To(Equal(1))
		})
	})

	Context("hooks", func() {
		It("reports every transition", func() {
			var mu sync.Mutex
			var events []queue.Event
			q = queue.New(registry(), queue.WithClock(clock.Now), queue.WithHook(func(t queue.Transition) {
				mu.Lock()
				defer mu.Unlock()
				events = append(events, t.Event)
			}))

			job := enqueue(analysis.PriorityHigh)
			claim()
			Expect(q.UpdateProgress(ctx, job.ID, 50, "half way")).To(Succeed())
			_, err := q.Fail(ctx, job.ID, queue.Failure{Message: "timeout", Retryable: true})
			Expect(err).To(BeNil())
			clock.Advance(time.Hour)
			claim()
			_, err = q.Complete(ctx, job.ID, analysis.Succeeded(nil, nil))
			Expect(err).To(BeNil())

			Expect(events).To(Equal([]queue.Event{
				queue.EventEnqueued, queue.EventStarted, queue.EventRetrying, queue.EventStarted, queue.EventCompleted,
			}))
		})
	})
})
