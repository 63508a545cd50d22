package repository

import (
	"sort"

	"kairos/internal/domain"
	iface "kairos/internal/repository/iface"
)

// ApplyClaim mutates job the way a successful claim persists it
func ApplyClaim(job *domain.ScheduledJob, req iface.ClaimRequest) {
	job.NextRun = 0
	if !req.NextRun.IsZero() {
		job.NextRun = req.NextRun.UnixMilli()
	}
	if !req.LastRun.IsZero() {
		job.LastRun = req.LastRun.UnixMilli()
	}
	job.Version = req.ExpectedVersion + 1
	job.UpdatedAt = req.Now.UnixMilli()
}

// SortDue orders due schedules: unset next_run first, then next_run ascending, then id ascending
func SortDue(jobs []*domain.ScheduledJob) {
	sort.SliceStable(jobs, func(i, k int) bool {
		a, b := jobs[i], jobs[k]
		if (a.NextRun == 0) != (b.NextRun == 0) {
			return a.NextRun == 0
		}
		if a.NextRun != b.NextRun {
			return a.NextRun < b.NextRun
		}
		return a.ID < b.ID
	})
}
