package main

import (
	"context"
	"database/sql"
	"log"

	"github.com/robfig/cron/v3"
)

// jobWrappers is the chain applied to every job: a still-running job
// suppresses its own next tick while other jobs keep firing, and a job
// panic is recovered instead of killing the process.
func jobWrappers() []cron.JobWrapper {
	return []cron.JobWrapper{
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	}
}

// StartScheduler registers every pipeline job on its own cadence and
// starts the cron runner.
func StartScheduler(cfg Config, db *sql.DB, oracle Classifier, checker MovementChecker, notifier Notifier, connectors []Connector) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(jobWrappers()...))

	jobs := []struct {
		id       string
		schedule string
		run      func() error
	}{
		{"ingest", cfg.IngestSchedule, func() error {
			_, err := RunIngest(context.Background(), cfg, db, connectors)
			return err
		}},
		{"signal_sweep", cfg.SweepSchedule, func() error {
			_, err := RunSignalSweep(context.Background(), cfg, db, oracle, notifier)
			return err
		}},
		{"autonomy_loop", cfg.AutonomySchedule, func() error {
			_, err := RunAutonomyLoop(context.Background(), cfg, db, oracle, notifier)
			return err
		}},
		{"people_sweep", cfg.PeopleSchedule, func() error {
			_, _, err := RunPeopleSweep(context.Background(), cfg, db, checker, notifier)
			return err
		}},
	}

	for _, job := range jobs {
		id, schedule, run := job.id, job.schedule, job.run
		_, err := c.AddFunc(schedule, func() {
			log.Printf("job=%s start", id)
			if err := run(); err != nil {
				// Job failure is logged, never propagated: the scheduler
				// keeps the job registered for its next tick.
				log.Printf("job=%s error: %v", id, err)
				return
			}
			log.Printf("job=%s done", id)
		})
		if err != nil {
			return nil, err
		}
		log.Printf("job=%s scheduled (cron: %s)", id, schedule)
	}

	c.Start()
	return c, nil
}
