package cron

import (
	"context"
	"fmt"
	"strings"
)

// Job is one unit of scheduled maintenance.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.run(ctx) }

// JobFunc wraps fn as a Job called name.
func JobFunc(name string, fn func(ctx context.Context) error) Job {
	return funcJob{name: name, run: fn}
}

// checkJobs rejects nil jobs and names that would collide in metrics.
func checkJobs(jobs []Job) error {
	seen := make(map[string]struct{}, len(jobs))
	for i, job := range jobs {
		if job == nil {
			return fmt.Errorf("job %d is nil", i)
		}
		name := strings.TrimSpace(job.Name())
		if name == "" {
			return fmt.Errorf("job %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("job %q registered twice", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
