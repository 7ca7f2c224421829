package v1alpha1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/onronder/ContentLabTech-sub011/internal/analysis"
	"github.com/onronder/ContentLabTech-sub011/internal/auth"
	handlers "github.com/onronder/ContentLabTech-sub011/internal/handlers/v1alpha1"
	"github.com/onronder/ContentLabTech-sub011/internal/processor"
	"github.com/onronder/ContentLabTech-sub011/internal/service"
	"github.com/onronder/ContentLabTech-sub011/internal/status"
	"github.com/onronder/ContentLabTech-sub011/pkg/middleware"
)

type fakeService struct {
	jobs      map[uuid.UUID]*analysis.Job
	submitErr error
	submitted []service.SubmitJobRequest
}

func newFakeService() *fakeService {
	return &fakeService{jobs: map[uuid.UUID]*analysis.Job{}}
}

func (f *fakeService) SubmitJob(_ context.Context, req service.SubmitJobRequest) (*analysis.Job, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	job := &analysis.Job{
		ID:        uuid.New(),
		Type:      analysis.JobType(req.Type),
		Status:    analysis.StatusPending,
		Priority:  analysis.PriorityMedium,
		CreatedAt: time.Now().UTC(),
		Data:      analysis.JobData{ProjectID: req.ProjectID},
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeService) GetStatus(_ context.Context, projectID string) (*status.AnalyticsStatus, error) {
	if projectID == "missing" {
		return nil, errors.New("boom")
	}
	results := map[analysis.JobType]*analysis.ResultEntry{}
	for _, t := range analysis.JobTypes {
		results[t] = nil
	}
	return &status.AnalyticsStatus{ProjectID: projectID, Jobs: []*analysis.Job{}, Results: results, GeneratedAt: time.Now()}, nil
}

func (f *fakeService) CancelJob(_ context.Context, id uuid.UUID) (*analysis.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, service.NewErrJobNotFound(id)
	}
	if job.IsTerminal() {
		return nil, service.NewErrJobNotCancellable(id, job.Status)
	}
	job.Status = analysis.StatusCancelled
	return job, nil
}

func (f *fakeService) GetJob(_ context.Context, id uuid.UUID) (*analysis.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, service.NewErrJobNotFound(id)
	}
	return job, nil
}

func (f *fakeService) QueueStats() analysis.QueueStats {
	return analysis.QueueStats{Total: len(f.jobs), ProcessingCapacity: 4}
}

func (f *fakeService) Contracts() []processor.Contract {
	return processor.NewDefaultRegistry(processor.Dependencies{}).Contracts()
}

var _ = Describe("service handler", func() {
	var (
		srv    *fakeService
		router chi.Router
	)

	BeforeEach(func() {
		srv = newFakeService()
		router = chi.NewRouter()
		router.Use(middleware.RequestID)
		handlers.NewServiceHandler(srv).Routes(router)
	})

	do := func(method, path string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	Context("jobs", func() {
		It("submits a job", func() {
			rr := do(http.MethodPost, "/api/v1/jobs", []byte(`{"projectId":"p1","userId":"u1","teamId":"t1","type":"seo-health","params":{"websiteUrl":"https://example.com","pages":["/"]}}`))
			Expect(rr.Code).To(Equal(http.StatusCreated))

			var job analysis.Job
			Expect(json.Unmarshal(rr.Body.Bytes(), &job)).To(Succeed())
			Expect(job.Status).To(Equal(analysis.StatusPending))
			Expect(srv.submitted).To(HaveLen(1))
			Expect(string(srv.submitted[0].Params)).To(ContainSubstring("example.com"))
		})

		It("takes the submitter from the authenticated user", func() {
			body := []byte(`{"projectId":"p1","userId":"u1","teamId":"t1","type":"seo-health","params":{"websiteUrl":"https://example.com","pages":["/"]}}`)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
			req = req.WithContext(auth.NewUserContext(req.Context(), auth.User{ID: "token-user"}))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			Expect(rr.Code).To(Equal(http.StatusCreated))
			Expect(srv.submitted[0].UserID).To(Equal("token-user"))
			Expect(srv.submitted[0].TeamID).To(Equal("t1"))
		})

		It("maps a validation error to 400 with fields", func() {
			srv.submitErr = service.NewErrInvalidField("pages", "must contain at least 1 item")
			rr := do(http.MethodPost, "/api/v1/jobs", []byte(`{"type":"seo-health"}`))
			Expect(rr.Code).To(Equal(http.StatusBadRequest))

			var resp handlers.ErrorResponse
			Expect(json.Unmarshal(rr.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Fields).To(HaveLen(1))
			Expect(resp.Fields[0].Field).To(Equal("pages"))
			Expect(resp.RequestId).NotTo(BeNil())
		})

		It("rejects a malformed body", func() {
			rr := do(http.MethodPost, "/api/v1/jobs", []byte(`{`))
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps a closed pipeline to 503", func() {
			srv.submitErr = service.NewErrServiceUnavailable()
			rr := do(http.MethodPost, "/api/v1/jobs", []byte(`{}`))
			Expect(rr.Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("gets and cancels a job", func() {
			job, _ := srv.SubmitJob(context.TODO(), service.SubmitJobRequest{Type: "seo-health", ProjectID: "p1"})

			rr := do(http.MethodGet, "/api/v1/jobs/"+job.ID.String(), nil)
			Expect(rr.Code).To(Equal(http.StatusOK))

			rr = do(http.MethodPost, "/api/v1/jobs/"+job.ID.String()+"/cancel", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			var resp handlers.CancelJobResponse
			Expect(json.Unmarshal(rr.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Cancelled).To(BeTrue())
			Expect(resp.Job.Status).To(Equal(analysis.StatusCancelled))

			rr = do(http.MethodPost, "/api/v1/jobs/"+job.ID.String()+"/cancel", nil)
			Expect(rr.Code).To(Equal(http.StatusConflict))
		})

		It("returns 404 for an unknown job and 400 for a bad id", func() {
			Expect(do(http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), nil).Code).To(Equal(http.StatusNotFound))
			Expect(do(http.MethodPost, "/api/v1/jobs/"+uuid.NewString()+"/cancel", nil).Code).To(Equal(http.StatusNotFound))
			Expect(do(http.MethodGet, "/api/v1/jobs/not-a-uuid", nil).Code).To(Equal(http.StatusBadRequest))
		})
	})

	Context("projects", func() {
		It("returns the status", func() {
			rr := do(http.MethodGet, "/api/v1/projects/p1/status", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))

			var st map[string]any
			Expect(json.Unmarshal(rr.Body.Bytes(), &st)).To(Succeed())
			Expect(st["projectId"]).To(Equal("p1"))
			Expect(st["results"]).To(HaveLen(len(analysis.JobTypes)))
		})

		It("returns 500 when the status fails", func() {
			Expect(do(http.MethodGet, "/api/v1/projects/missing/status", nil).Code).To(Equal(http.StatusInternalServerError))
		})

		It("renders reports", func() {
			rr := do(http.MethodGet, "/api/v1/projects/p1/report", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Header().Get("Content-Type")).To(Equal("text/csv"))
			Expect(rr.Header().Get("Content-Disposition")).To(ContainSubstring("p1-status.csv"))
			Expect(rr.Body.String()).To(HavePrefix("CONTENT ANALYTICS STATUS REPORT"))

			rr = do(http.MethodGet, "/api/v1/projects/p1/report?format=xlsx", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Header().Get("Content-Type")).To(ContainSubstring("spreadsheetml"))
			// xlsx is a zip archive
			Expect(rr.Body.Bytes()[:2]).To(Equal([]byte("PK")))

			Expect(do(http.MethodGet, "/api/v1/projects/p1/report?format=pdf", nil).Code).To(Equal(http.StatusBadRequest))
		})
	})

	It("serves queue stats, processors and health", func() {
		rr := do(http.MethodGet, "/api/v1/queue/stats", nil)
		Expect(rr.Code).To(Equal(http.StatusOK))
		var stats analysis.QueueStats
		Expect(json.Unmarshal(rr.Body.Bytes(), &stats)).To(Succeed())
		Expect(stats.ProcessingCapacity).To(Equal(4))

		rr = do(http.MethodGet, "/api/v1/processors", nil)
		Expect(rr.Code).To(Equal(http.StatusOK))
		var contracts []processor.Contract
		Expect(json.Unmarshal(rr.Body.Bytes(), &contracts)).To(Succeed())
		Expect(contracts).To(HaveLen(len(analysis.JobTypes)))

		Expect(do(http.MethodGet, "/health", nil).Code).To(Equal(http.StatusOK))
	})
})
