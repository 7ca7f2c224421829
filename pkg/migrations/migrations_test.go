package migrations_test

import (
	"context"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/onronder/ContentLabTech-sub011/internal/config"
	"github.com/onronder/ContentLabTech-sub011/internal/store"
	"github.com/onronder/ContentLabTech-sub011/internal/store/model"
	"github.com/onronder/ContentLabTech-sub011/pkg/migrations"
)

var _ = Describe("migrations", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		cfg := config.NewDefault()
		cfg.Database.Name = "file:migrations?mode=memory&cache=shared"
		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
	})

	AfterAll(func() {
		s.Close()
	})

	Context("store migrations", Ordered, func() {
		It("fails to migrate the db -- migration folder does not exist", func() {
			err := migrations.MigrateStore(gormdb, "some folder")
			Expect(err).NotTo(BeNil())
		})

		It("fails when the migration folder is a file", func() {
			currentFolder, err := os.Getwd()
			Expect(err).To(BeNil())
			err = migrations.MigrateStore(gormdb, path.Join(currentFolder, "migrations.go"))
			Expect(err).NotTo(BeNil())
		})

		It("successfully migrates the db from a folder", func() {
			currentFolder, err := os.Getwd()
			Expect(err).To(BeNil())

			Expect(migrations.MigrateStore(gormdb, path.Join(currentFolder, "sql"))).To(Succeed())
			for _, table := range []string{"processing_jobs", "analysis_results", "goose_db_version"} {
				Expect(gormdb.Migrator().HasTable(table)).To(BeTrue(), table)
			}
		})

		It("successfully migrates the db with the embedded files", func() {
			Expect(migrations.MigrateStore(gormdb, "")).To(Succeed())
			// the record store works on the migrated schema
			saved, err := s.Job().Save(context.TODO(), model.ProcessingJob{
				JobID:      uuid.New(),
				ProjectID:  "p1",
				JobType:    "seo-health",
				Status:     "pending",
				Priority:   "medium",
				CreatedAt:  time.Now().UTC(),
				MaxRetries: 3,
				JobData:    []byte(`{}`),
				Revision:   1,
			})
			Expect(err).To(BeNil())
			Expect(saved).To(BeTrue())
		})

		AfterEach(func() {
			gormdb.Exec("DROP TABLE IF EXISTS processing_jobs;")
			gormdb.Exec("DROP TABLE IF EXISTS analysis_results;")
			gormdb.Exec("DROP TABLE IF EXISTS goose_db_version;")
		})
	})
})
