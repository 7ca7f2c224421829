package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
	"github.com/onronder/ContentLabTech-sub011/internal/config"
	"github.com/onronder/ContentLabTech-sub011/internal/processor"
	"github.com/onronder/ContentLabTech-sub011/internal/queue"
	"github.com/onronder/ContentLabTech-sub011/internal/results"
	"github.com/onronder/ContentLabTech-sub011/internal/service"
	"github.com/onronder/ContentLabTech-sub011/internal/status"
	"github.com/onronder/ContentLabTech-sub011/internal/store"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func seoRequest(projectID string) service.SubmitJobRequest {
	return service.SubmitJobRequest{
		ProjectID: projectID,
		UserID:    "user-1",
		TeamID:    "team-1",
		Type:      string(analysis.JobTypeSEOHealth),
		Priority:  "high",
		Params:    json.RawMessage(`{"websiteUrl":"https://example.com","pages":["/","/about","/services"],"includePerformance":true,"includeMobile":true}`),
	}
}

var _ = Describe("pipeline service", Ordered, func() {
	var (
		s   store.Store
		q   *queue.Queue
		res *results.Store
		svc *service.PipelineService
		clk *clock
		ctx = context.TODO()
	)

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())
		s = store.NewStore(db)
		Expect(s.InitialMigration(ctx)).To(Succeed())

		clk = &clock{now: time.Now().UTC()}
		registry := processor.NewDefaultRegistry(processor.Dependencies{})
		q = queue.New(registry,
			queue.WithCapacity(2),
			queue.WithRecorder(s.Job()),
			queue.WithClock(clk.Now),
		)
		res = results.NewStore()
		agg := status.NewAggregator(status.QueueJobs{Queue: q, Records: s.Job()}, res, q, 20)
		svc = service.NewPipelineService(q, agg, registry, s.Job())
	})

	AfterAll(func() {
		q.Close()
		s.Close()
	})

	Context("submit", func() {
		It("creates a pending job", func() {
			job, err := svc.SubmitJob(ctx, seoRequest("p-submit"))
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(analysis.StatusPending))
			Expect(job.Priority).To(Equal(analysis.PriorityHigh))
			Expect(job.Data.Params).To(BeAssignableToTypeOf(analysis.SEOHealthParams{}))

			got, err := svc.GetJob(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(got.ID).To(Equal(job.ID))
		})

		It("defaults the priority to medium", func() {
			req := seoRequest("p-submit")
			req.Priority = ""
			job, err := svc.SubmitJob(ctx, req)
			Expect(err).To(BeNil())
			Expect(job.Priority).To(Equal(analysis.PriorityMedium))
		})

		It("rejects invalid submissions without creating a job", func() {
			before := svc.QueueStats().Total

			cases := []func(r *service.SubmitJobRequest){
				func(r *service.SubmitJobRequest) { r.Type = "keyword-research" },
				func(r *service.SubmitJobRequest) { r.Priority = "urgent" },
				func(r *service.SubmitJobRequest) { r.Params = json.RawMessage(`{"websiteUrl":"https://example.com","pages":[]}`) },
				func(r *service.SubmitJobRequest) { r.Params = json.RawMessage(`{"websiteUrl":"not a url","pages":["/"]}`) },
				func(r *service.SubmitJobRequest) { r.Params = nil },
				func(r *service.SubmitJobRequest) { r.ProjectID = "" },
			}
			for _, mutate := range cases {
				req := seoRequest("p-invalid")
				mutate(&req)
				_, err := svc.SubmitJob(ctx, req)
				Expect(err).To(BeAssignableToTypeOf(&service.ErrInvalidJob{}))
				Expect(err.(*service.ErrInvalidJob).Fields).NotTo(BeEmpty())
			}

			Expect(svc.QueueStats().Total).To(Equal(before))
		})
	})

	Context("cancel", func() {
		It("cancels a pending job", func() {
			job, err := svc.SubmitJob(ctx, seoRequest("p-cancel"))
			Expect(err).To(BeNil())

			cancelled, err := svc.CancelJob(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(cancelled.Status).To(Equal(analysis.StatusCancelled))

			_, err = svc.CancelJob(ctx, job.ID)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrJobNotCancellable{}))
			Expect(err.(*service.ErrJobNotCancellable).Status).To(Equal(analysis.StatusCancelled))
		})

		It("reports an unknown job", func() {
			_, err := svc.CancelJob(ctx, uuid.New())
			Expect(err).To(BeAssignableToTypeOf(&service.ErrResourceNotFound{}))

			_, err = svc.GetJob(ctx, uuid.New())
			Expect(err).To(BeAssignableToTypeOf(&service.ErrResourceNotFound{}))
		})
	})

	Context("status", func() {
		It("combines jobs, results and queue stats", func() {
			req := seoRequest("p-status")
			req.Priority = "critical"
			job, err := svc.SubmitJob(ctx, req)
			Expect(err).To(BeNil())

			claimed, ok := q.Claim(ctx, "worker-1")
			Expect(ok).To(BeTrue())
			Expect(claimed.ID).To(Equal(job.ID))
			done, err := q.Complete(ctx, job.ID, analysis.Succeeded(&processor.SEOHealthReport{OverallScore: 81}, nil))
			Expect(err).To(BeNil())
			_, err = res.Put(ctx, done, &processor.SEOHealthReport{OverallScore: 81})
			Expect(err).To(BeNil())

			st, err := svc.GetStatus(ctx, "p-status")
			Expect(err).To(BeNil())
			Expect(st.Errors).To(BeEmpty())
			Expect(st.Jobs).To(HaveLen(1))
			Expect(st.Summary.Completed).To(Equal(1))
			Expect(st.Results).To(HaveLen(len(analysis.JobTypes)))
			Expect(st.Results[analysis.JobTypeSEOHealth]).NotTo(BeNil())
			Expect(st.Results[analysis.JobTypePerformance]).To(BeNil())
			Expect(st.Queue.ProcessingCapacity).To(Equal(2))
		})

		It("requires a project", func() {
			_, err := svc.GetStatus(ctx, "")
			Expect(err).To(BeAssignableToTypeOf(&service.ErrInvalidJob{}))
		})
	})

	Context("pruned jobs", func() {
		It("are read from the record store", func() {
			job, err := svc.SubmitJob(ctx, seoRequest("p-pruned"))
			Expect(err).To(BeNil())
			_, err = svc.CancelJob(ctx, job.ID)
			Expect(err).To(BeNil())

			clk.Advance(48 * time.Hour)
			Expect(q.Prune()).To(BeNumerically(">=", 1))
			_, err = q.Get(job.ID)
			Expect(err).To(MatchError(queue.ErrJobNotFound))

			got, err := svc.GetJob(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal(analysis.StatusCancelled))

			_, err = svc.CancelJob(ctx, job.ID)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrJobNotCancellable{}))
		})
	})

	It("lists the processor contracts", func() {
		Expect(svc.Contracts()).To(HaveLen(len(analysis.JobTypes)))
	})
})
