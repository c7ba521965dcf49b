package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/daicraft/dai/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "dai.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return db
}

func sampleReport(id string, started time.Time) *models.Report {
	return &models.Report{
		RunID:  id,
		Status: models.RunStatusPartiallyFailed,
		Tasks: []models.TaskReport{
			{
				ID:     "pm",
				Role:   "Product Manager",
				Status: models.TaskStatusSucceeded,
				Result: &models.Result{
					Text:     "a plan",
					Provider: "anthropic",
					Model:    "claude-sonnet-4-5",
				},
				Attempts: 1,
			},
			{
				ID:     "dev",
				Role:   "Developer",
				Status: models.TaskStatusFailed,
				Failure: &models.Failure{
					Kind:     "rate_limited",
					Message:  "429 from provider",
					Attempts: 4,
				},
				Attempts: 4,
			},
			{
				ID:       "qa",
				Role:     "QA Engineer",
				Status:   models.TaskStatusSkipped,
				Attempts: 0,
			},
		},
		StartedAt:    started,
		FinishedAt:   started.Add(42 * time.Second),
		InputTokens:  1200,
		OutputTokens: 900,
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
}

func TestSaveAndLoadRun(t *testing.T) {
	db := openTestDB(t)

	report := sampleReport("run-0001", time.Now().Add(-time.Minute))
	if err := db.SaveRun(report, "ship-a-feature", models.DefaultRunConfig()); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	loaded, err := db.LoadRun("run-0001")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}

	if loaded.Status != models.RunStatusPartiallyFailed {
		t.Errorf("Status = %s, want %s", loaded.Status, models.RunStatusPartiallyFailed)
	}
	if loaded.InputTokens != 1200 || loaded.OutputTokens != 900 {
		t.Errorf("tokens = %d/%d, want 1200/900", loaded.InputTokens, loaded.OutputTokens)
	}
	if len(loaded.Tasks) != 3 {
		t.Fatalf("got %d task outcomes, want 3", len(loaded.Tasks))
	}

	pm := loaded.Tasks[0]
	if pm.ID != "pm" || pm.Status != models.TaskStatusSucceeded {
		t.Errorf("tasks[0] = %+v, want succeeded pm", pm)
	}
	if pm.Result == nil || pm.Result.Text != "a plan" {
		t.Errorf("pm.Result = %+v, want stored payload", pm.Result)
	}

	dev := loaded.Tasks[1]
	if dev.Failure == nil || dev.Failure.Kind != "rate_limited" {
		t.Errorf("dev.Failure = %+v, want rate_limited", dev.Failure)
	}
	if dev.Attempts != 4 {
		t.Errorf("dev.Attempts = %d, want 4", dev.Attempts)
	}

	qa := loaded.Tasks[2]
	if qa.Status != models.TaskStatusSkipped || qa.Result != nil || qa.Failure != nil {
		t.Errorf("tasks[2] = %+v, want bare skipped outcome", qa)
	}
}

func TestSaveRunOverwrites(t *testing.T) {
	db := openTestDB(t)

	report := sampleReport("run-0001", time.Now())
	if err := db.SaveRun(report, "crew", models.DefaultRunConfig()); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	report.Status = models.RunStatusCompleted
	report.Tasks = report.Tasks[:1]
	if err := db.SaveRun(report, "crew", models.DefaultRunConfig()); err != nil {
		t.Fatalf("second SaveRun failed: %v", err)
	}

	loaded, err := db.LoadRun("run-0001")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if loaded.Status != models.RunStatusCompleted {
		t.Errorf("Status = %s, want %s", loaded.Status, models.RunStatusCompleted)
	}
	if len(loaded.Tasks) != 1 {
		t.Errorf("got %d task outcomes, want 1 after overwrite", len(loaded.Tasks))
	}
}

func TestLoadRunNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.LoadRun("missing"); err != ErrRunNotFound {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunConfigFor(t *testing.T) {
	db := openTestDB(t)

	cfg := models.DefaultRunConfig()
	cfg.MaxConcurrency = 7
	cfg.FailurePolicy = models.FailureStrict
	if err := db.SaveRun(sampleReport("run-0001", time.Now()), "crew", cfg); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	loaded, err := db.RunConfigFor("run-0001")
	if err != nil {
		t.Fatalf("RunConfigFor failed: %v", err)
	}
	if loaded.MaxConcurrency != 7 {
		t.Errorf("MaxConcurrency = %d, want 7", loaded.MaxConcurrency)
	}
	if loaded.FailurePolicy != models.FailureStrict {
		t.Errorf("FailurePolicy = %s, want strict", loaded.FailurePolicy)
	}

	if _, err := db.RunConfigFor("missing"); err != ErrRunNotFound {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	db := openTestDB(t)

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		report := sampleReport(id, base.Add(time.Duration(i)*time.Minute))
		if err := db.SaveRun(report, "crew-"+id, models.DefaultRunConfig()); err != nil {
			t.Fatalf("SaveRun(%s) failed: %v", id, err)
		}
	}

	runs, err := db.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	// Newest first
	if runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Errorf("got order %s, %s, want run-c, run-b", runs[0].ID, runs[1].ID)
	}
	if runs[0].Succeeded != 1 || runs[0].Total != 3 {
		t.Errorf("summary counts = %d/%d, want 1/3", runs[0].Succeeded, runs[0].Total)
	}
	if runs[0].Crew != "crew-run-c" {
		t.Errorf("Crew = %q, want crew-run-c", runs[0].Crew)
	}
}

func TestPurgeOldRuns(t *testing.T) {
	db := openTestDB(t)

	old := sampleReport("run-old", time.Now().Add(-48*time.Hour))
	recent := sampleReport("run-new", time.Now())
	if err := db.SaveRun(old, "crew", models.DefaultRunConfig()); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := db.SaveRun(recent, "crew", models.DefaultRunConfig()); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	purged, err := db.PurgeOldRuns(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldRuns failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	if _, err := db.LoadRun("run-old"); err != ErrRunNotFound {
		t.Errorf("expected old run to be purged, got %v", err)
	}
	if _, err := db.LoadRun("run-new"); err != nil {
		t.Errorf("expected recent run to survive: %v", err)
	}
}
