package store_test

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/onronder/ContentLabTech-sub011/internal/config"
	st "github.com/onronder/ContentLabTech-sub011/internal/store"
	"github.com/onronder/ContentLabTech-sub011/internal/store/model"
)

func newRecord(projectID, jobType string) model.ProcessingJob {
	return model.ProcessingJob{
		JobID:      uuid.New(),
		ProjectID:  projectID,
		JobType:    jobType,
		Status:     "pending",
		Priority:   "medium",
		CreatedAt:  time.Now().UTC(),
		MaxRetries: 3,
		JobData:    []byte(`{"projectId":"` + projectID + `"}`),
		Revision:   1,
	}
}

var _ = Describe("Store", Ordered, func() {
	var (
		store  st.Store
		gormDB *gorm.DB
	)

	BeforeAll(func() {
		cfg := config.NewDefault()
		db, err := st.InitDB(cfg)
		Expect(err).To(BeNil())
		gormDB = db

		store = st.NewStore(db)
		Expect(store.InitialMigration(context.TODO())).To(Succeed())
	})

	AfterAll(func() {
		store.Close()
	})

	AfterEach(func() {
		gormDB.Exec("DELETE FROM processing_jobs;")
		gormDB.Exec("DELETE FROM analysis_results;")
	})

	Context("transaction", func() {
		It("commits a job", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			written, err := store.Job().Save(ctx, newRecord("p1", "seo-health"))
			Expect(err).To(BeNil())
			Expect(written).To(BeTrue())

			_, err = st.Commit(ctx)
			Expect(err).To(BeNil())

			count := 0
			Expect(gormDB.Raw("SELECT COUNT(*) FROM processing_jobs;").Scan(&count).Error).To(BeNil())
			Expect(count).To(Equal(1))
		})

		It("rolls back a job", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			_, err = store.Job().Save(ctx, newRecord("p1", "seo-health"))
			Expect(err).To(BeNil())

			_, err = st.Rollback(ctx)
			Expect(err).To(BeNil())

			count := 0
			Expect(gormDB.Raw("SELECT COUNT(*) FROM processing_jobs;").Scan(&count).Error).To(BeNil())
			Expect(count).To(Equal(0))
		})
	})

	Context("with transaction", func() {
		It("rolls back when the function fails", func() {
			err := st.WithTransaction(context.TODO(), gormDB, logrus.New(), func(ctx context.Context) error {
				_, err := store.Job().Save(ctx, newRecord("p1", "seo-health"))
				Expect(err).To(BeNil())
				return errors.New("boom")
			})
			Expect(err).To(MatchError("boom"))

			count := 0
			Expect(gormDB.Raw("SELECT COUNT(*) FROM processing_jobs;").Scan(&count).Error).To(BeNil())
			Expect(count).To(Equal(0))
		})

		It("joins the transaction already in the context", func() {
			err := st.WithTransaction(context.TODO(), gormDB, logrus.New(), func(outer context.Context) error {
				return st.WithTransaction(outer, gormDB, logrus.New(), func(inner context.Context) error {
					Expect(st.FromContext(inner)).To(BeIdenticalTo(st.FromContext(outer)))
					_, err := store.Job().Save(inner, newRecord("p1", "seo-health"))
					return err
				})
			})
			Expect(err).To(BeNil())

			count := 0
			Expect(gormDB.Raw("SELECT COUNT(*) FROM processing_jobs;").Scan(&count).Error).To(BeNil())
			Expect(count).To(Equal(1))
		})
	})

	Context("job", func() {
		It("applies newer revisions only", func() {
			rec := newRecord("p1", "performance")
			_, err := store.Job().Save(context.TODO(), rec)
			Expect(err).To(BeNil())

			rec.Status = "processing"
			rec.Progress = 40
			rec.Revision = 3
			written, err := store.Job().Save(context.TODO(), rec)
			Expect(err).To(BeNil())
			Expect(written).To(BeTrue())

			stale := rec
			stale.Status = "pending"
			stale.Progress = 0
			stale.Revision = 2
			written, err = store.Job().Save(context.TODO(), stale)
			Expect(err).To(BeNil())
			Expect(written).To(BeFalse())

			got, err := store.Job().Get(context.TODO(), rec.JobID)
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal("processing"))
			Expect(got.Progress).To(Equal(40))
			Expect(got.Revision).To(BeEquivalentTo(3))
		})

		It("returns ErrRecordNotFound for unknown jobs", func() {
			_, err := store.Job().Get(context.TODO(), uuid.New())
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})

		It("filters by status and project", func() {
			a := newRecord("p1", "seo-health")
			b := newRecord("p1", "seo-health")
			b.Status = "processing"
			c := newRecord("p2", "seo-health")
			for _, r := range []model.ProcessingJob{a, b, c} {
				_, err := store.Job().Save(context.TODO(), r)
				Expect(err).To(BeNil())
			}

			recs, err := store.Job().List(context.TODO(),
				st.NewJobQueryFilter().ByStatus("pending", "processing"),
				st.NewJobQueryOptions().WithSortOrder(st.SortByCreatedTime))
			Expect(err).To(BeNil())
			Expect(recs).To(HaveLen(3))

			recs, err = store.Job().List(context.TODO(), st.NewJobQueryFilter().ByProjectID("p1").ByStatus("processing"), nil)
			Expect(err).To(BeNil())
			Expect(recs).To(HaveLen(1))
			Expect(recs[0].JobID).To(Equal(b.JobID))
		})

		It("lists the latest result history oldest first", func() {
			base := time.Now().UTC().Add(-time.Hour)
			var ids []uuid.UUID
			for i := 0; i < 4; i++ {
				r := newRecord("p1", "seo-health")
				r.Status = "completed"
				done := base.Add(time.Duration(i) * time.Minute)
				r.CompletedAt = &done
				r.ResultData = []byte(`{"overallScore":1}`)
				_, err := store.Job().Save(context.TODO(), r)
				Expect(err).To(BeNil())
				ids = append(ids, r.JobID)
			}
			// no result, not part of the history
			failed := newRecord("p1", "seo-health")
			failed.Status = "failed"
			_, err := store.Job().Save(context.TODO(), failed)
			Expect(err).To(BeNil())

			recs, err := store.Job().ResultHistory(context.TODO(), "p1", "seo-health", base.Add(-time.Minute), 3)
			Expect(err).To(BeNil())
			Expect(recs).To(HaveLen(3))
			Expect(recs[0].JobID).To(Equal(ids[1]))
			Expect(recs[2].JobID).To(Equal(ids[3]))
		})
	})

	Context("result", func() {
		It("keeps the latest result per project and type", func() {
			now := time.Now().UTC()
			first := model.AnalysisResult{ProjectID: "p1", AnalysisType: "seo-health", JobID: uuid.New(), Data: []byte(`{"v":1}`), UpdatedAt: now}
			Expect(store.Result().Upsert(context.TODO(), first)).To(Succeed())

			second := first
			second.JobID = uuid.New()
			second.Data = []byte(`{"v":2}`)
			second.UpdatedAt = now.Add(time.Minute)
			Expect(store.Result().Upsert(context.TODO(), second)).To(Succeed())

			older := first
			older.JobID = uuid.New()
			older.UpdatedAt = now.Add(-time.Minute)
			Expect(store.Result().Upsert(context.TODO(), older)).To(Succeed())

			got, err := store.Result().Get(context.TODO(), "p1", "seo-health")
			Expect(err).To(BeNil())
			Expect(got.JobID).To(Equal(second.JobID))
			Expect(string(got.Data)).To(Equal(`{"v":2}`))

			Expect(store.Result().Upsert(context.TODO(), model.AnalysisResult{
				ProjectID: "p1", AnalysisType: "performance", JobID: uuid.New(), Data: []byte(`{}`), UpdatedAt: now,
			})).To(Succeed())
			list, err := store.Result().List(context.TODO(), st.NewResultQueryFilter().ByProjectID("p1"))
			Expect(err).To(BeNil())
			Expect(list).To(HaveLen(2))
			Expect(list[0].AnalysisType).To(Equal("performance"))
		})

		It("returns ErrRecordNotFound when nothing was stored", func() {
			_, err := store.Result().Get(context.TODO(), "nope", "seo-health")
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})
	})
})
