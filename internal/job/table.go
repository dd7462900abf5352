package job

import (
	"slices"
	"sync"
)

// Table is the ordered collection of live jobs. Insertion order is creation
// order and the last job is the table's tail.
//
// Table is safe for concurrent use. Every method is a single critical
// section, so the reaper never observes a half-applied insert, removal or
// marker change.
type Table struct {
	jobs []*Job

	mu sync.Mutex
}

func NewTable() *Table {
	return &Table{}
}

// Insert appends a new Running job that becomes the current job. The old
// current job becomes the previous job and the old previous job loses its
// marker.
//
// The id is one more than the highest live id, so removing the highest job
// makes its id available again.
func (t *Table) Insert(commandLine string) Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := 1
	for _, j := range t.jobs {
		if j.ID >= id {
			id = j.ID + 1
		}
	}

	j := &Job{
		ID:          id,
		CommandLine: commandLine,
		State:       StateRunning,
	}

	t.jobs = append(t.jobs, j)
	t.makeCurrent(j)

	return j.clone()
}

// Attach records the process group created for job id and the pids of its
// members. The group leader is expected to be among pids.
func (t *Table) Attach(id, pgid int, pids []int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	j := t.byID(id)
	if j == nil {
		return ErrJobNotFound
	}

	for _, other := range t.jobs {
		if other != j && pgid > 0 && other.ProcessGroup == pgid {
			return ErrDuplicateProcessGroup
		}
	}

	j.ProcessGroup = pgid
	j.members = slices.Clone(pids)

	return nil
}

// Remove deletes the job with the given id. Removing an unknown id is a
// no-op.
//
// When the removed job was the current job, the previous job takes over the
// current marker, or the new tail if there is no previous job.
func (t *Table) Remove(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := slices.IndexFunc(t.jobs, func(j *Job) bool { return j.ID == id })
	if i < 0 {
		return
	}

	removed := t.jobs[i]
	t.jobs = slices.Delete(t.jobs, i, i+1)

	if removed.Marker != MarkerCurrent || len(t.jobs) == 0 {
		return
	}

	next := t.withMarker(MarkerPrevious)
	if next == nil {
		next = t.jobs[len(t.jobs)-1]
	}
	next.Marker = MarkerCurrent
}

// FindByProcessGroup returns the job led by pgid.
func (t *Table) FindByProcessGroup(pgid int) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	j := t.byProcessGroup(pgid)
	if j == nil {
		return Job{}, false
	}

	return j.clone(), true
}

// FindByID returns the job with the given id.
func (t *Table) FindByID(id int) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	j := t.byID(id)
	if j == nil {
		return Job{}, false
	}

	return j.clone(), true
}

// FindMostRecentActive returns the last job in table order that matches
// match, together with the job before it in the table. prev is the zero Job
// when the match is the first job.
func (t *Table) FindMostRecentActive(match func(Job) bool) (found, prev Job, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.jobs) - 1; i >= 0; i-- {
		if !match(t.jobs[i].clone()) {
			continue
		}

		if i > 0 {
			prev = t.jobs[i-1].clone()
		}

		return t.jobs[i].clone(), prev, true
	}

	return Job{}, Job{}, false
}

// Tail returns the most recently inserted job.
func (t *Table) Tail() (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.jobs) == 0 {
		return Job{}, false
	}

	return t.jobs[len(t.jobs)-1].clone(), true
}

// SetState sets the state of job id and returns the updated job.
func (t *Table) SetState(id int, s State) (Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	j := t.byID(id)
	if j == nil {
		return Job{}, ErrJobNotFound
	}

	j.State = s

	return j.clone(), nil
}

// Promote makes job id the current job, as happens when it is brought to the
// foreground.
func (t *Table) Promote(id int) (Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	j := t.byID(id)
	if j == nil {
		return Job{}, ErrJobNotFound
	}

	t.makeCurrent(j)

	return j.clone(), nil
}

// Exited records that pid has exited or was killed by a signal. The job is
// marked Done once none of its members is left. ok is false when pid does
// not belong to any job.
func (t *Table) Exited(pid int) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	j := t.byMember(pid)
	if j == nil {
		return Job{}, false
	}

	j.members = slices.DeleteFunc(j.members, func(p int) bool { return p == pid })
	if len(j.members) == 0 {
		j.State = StateDone
	}

	return j.clone(), true
}

// Stopped records that pid was stopped. While the group leader is alive only
// its stop counts, so ok is false for any other pid. Once the leader has
// exited, a stop of any remaining member stops the job.
func (t *Table) Stopped(pid int) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	j := t.byProcessGroup(pid)
	if j == nil {
		j = t.byMember(pid)
		if j != nil && slices.Contains(j.members, j.ProcessGroup) {
			j = nil
		}
	}
	if j == nil || j.State == StateDone {
		return Job{}, false
	}

	j.State = StateStopped

	return j.clone(), true
}

// Jobs returns a snapshot of every job in table order.
func (t *Table) Jobs() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	jobs := make([]Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		jobs = append(jobs, j.clone())
	}

	return jobs
}

// Len returns the number of jobs in the table.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.jobs)
}

func (t *Table) makeCurrent(j *Job) {
	if j.Marker == MarkerCurrent {
		return
	}

	if old := t.withMarker(MarkerPrevious); old != nil {
		old.Marker = MarkerNone
	}
	if old := t.withMarker(MarkerCurrent); old != nil {
		old.Marker = MarkerPrevious
	}

	j.Marker = MarkerCurrent
}

func (t *Table) withMarker(m Marker) *Job {
	for _, j := range t.jobs {
		if j.Marker == m {
			return j
		}
	}
	return nil
}

func (t *Table) byID(id int) *Job {
	for _, j := range t.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

func (t *Table) byProcessGroup(pgid int) *Job {
	if pgid <= 0 {
		return nil
	}
	for _, j := range t.jobs {
		if j.ProcessGroup == pgid {
			return j
		}
	}
	return nil
}

func (t *Table) byMember(pid int) *Job {
	for _, j := range t.jobs {
		if slices.Contains(j.members, pid) {
			return j
		}
	}
	return nil
}
