package job_test

import (
	"errors"
	"testing"

	"github.com/lijx3643/yash/internal/job"
)

func testMarkers(t *testing.T, table *job.Table) {
	t.Helper()

	current, previous := 0, 0
	for _, j := range table.Jobs() {
		switch j.Marker {
		case job.MarkerCurrent:
			current++
		case job.MarkerPrevious:
			previous++
		}
	}

	if table.Len() > 0 && current != 1 {
		t.Errorf("expected exactly one current job: got %d", current)
	}

	if previous > 1 {
		t.Errorf("expected at most one previous job: got %d", previous)
	}
}

func testJob(t *testing.T, got job.Job, want job.Job) {
	t.Helper()

	if got.ID != want.ID {
		t.Errorf("expected id: got '%d', want '%d'", got.ID, want.ID)
	}

	if got.State != want.State {
		t.Errorf("expected state: got '%s', want '%s'", got.State, want.State)
	}

	if got.Marker != want.Marker {
		t.Errorf("expected marker: got '%s', want '%s'", got.Marker, want.Marker)
	}
}

func TestTableInsert(t *testing.T) {
	t.Parallel()

	t.Run("Test first job", func(t *testing.T) {
		table := job.NewTable()

		j := table.Insert("sleep 5 &")

		testJob(t, j, job.Job{ID: 1, State: job.StateRunning, Marker: job.MarkerCurrent})

		if j.CommandLine != "sleep 5 &" {
			t.Errorf("expected command line: got '%s'", j.CommandLine)
		}
	})

	t.Run("Test markers shift on insert", func(t *testing.T) {
		table := job.NewTable()

		table.Insert("a &")
		table.Insert("b &")
		table.Insert("c &")

		jobs := table.Jobs()
		if len(jobs) != 3 {
			t.Fatalf("expected 3 jobs: got %d", len(jobs))
		}

		testJob(t, jobs[0], job.Job{ID: 1, State: job.StateRunning, Marker: job.MarkerNone})
		testJob(t, jobs[1], job.Job{ID: 2, State: job.StateRunning, Marker: job.MarkerPrevious})
		testJob(t, jobs[2], job.Job{ID: 3, State: job.StateRunning, Marker: job.MarkerCurrent})

		testMarkers(t, table)
	})

	t.Run("Test id reuse after removing highest", func(t *testing.T) {
		table := job.NewTable()

		table.Insert("a &")
		b := table.Insert("b &")

		table.Remove(b.ID)

		c := table.Insert("c &")
		if c.ID != b.ID {
			t.Errorf("expected reused id: got '%d', want '%d'", c.ID, b.ID)
		}

		testMarkers(t, table)
	})

	t.Run("Test id is max plus one, not count plus one", func(t *testing.T) {
		table := job.NewTable()

		a := table.Insert("a &")
		table.Insert("b &")
		table.Insert("c &")

		table.Remove(a.ID)

		d := table.Insert("d &")
		if d.ID != 4 {
			t.Errorf("expected id: got '%d', want '4'", d.ID)
		}
	})
}

func TestTableRemove(t *testing.T) {
	t.Parallel()

	t.Run("Test remove unknown id", func(t *testing.T) {
		table := job.NewTable()
		table.Insert("a &")

		table.Remove(42)

		if table.Len() != 1 {
			t.Errorf("expected table to be unchanged: got %d jobs", table.Len())
		}
	})

	t.Run("Test remove tail promotes new tail", func(t *testing.T) {
		table := job.NewTable()

		a := table.Insert("a &")
		b := table.Insert("b &")

		table.Remove(b.ID)

		got, ok := table.FindByID(a.ID)
		if !ok {
			t.Fatal("expected to find remaining job")
		}

		testJob(t, got, job.Job{ID: a.ID, State: job.StateRunning, Marker: job.MarkerCurrent})
		testMarkers(t, table)
	})

	t.Run("Test remove tail with no previous", func(t *testing.T) {
		table := job.NewTable()

		a := table.Insert("a &")
		table.Insert("b &")
		c := table.Insert("c &")

		table.Remove(c.ID)
		table.Remove(a.ID)

		tail, ok := table.Tail()
		if !ok {
			t.Fatal("expected a tail")
		}

		testJob(t, tail, job.Job{ID: 2, State: job.StateRunning, Marker: job.MarkerCurrent})
		testMarkers(t, table)
	})

	t.Run("Test remove middle job keeps markers", func(t *testing.T) {
		table := job.NewTable()

		a := table.Insert("a &")
		table.Insert("b &")
		table.Insert("c &")

		table.Remove(a.ID)

		jobs := table.Jobs()
		testJob(t, jobs[0], job.Job{ID: 2, State: job.StateRunning, Marker: job.MarkerPrevious})
		testJob(t, jobs[1], job.Job{ID: 3, State: job.StateRunning, Marker: job.MarkerCurrent})
	})

	t.Run("Test remove last job", func(t *testing.T) {
		table := job.NewTable()

		a := table.Insert("a &")
		table.Remove(a.ID)

		if _, ok := table.Tail(); ok {
			t.Error("expected empty table to have no tail")
		}
	})
}

func TestTableLookup(t *testing.T) {
	t.Parallel()

	t.Run("Test find by process group", func(t *testing.T) {
		table := job.NewTable()

		a := table.Insert("a &")
		if err := table.Attach(a.ID, 100, []int{100, 101}); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		got, ok := table.FindByProcessGroup(100)
		if !ok {
			t.Fatal("expected to find job by process group")
		}

		if got.ID != a.ID {
			t.Errorf("expected id: got '%d', want '%d'", got.ID, a.ID)
		}

		if _, ok := table.FindByProcessGroup(101); ok {
			t.Error("expected non-leader pid not to match a process group")
		}

		if _, ok := table.FindByProcessGroup(999); ok {
			t.Error("expected unknown process group not to match")
		}
	})

	t.Run("Test duplicate process group", func(t *testing.T) {
		table := job.NewTable()

		a := table.Insert("a &")
		b := table.Insert("b &")

		if err := table.Attach(a.ID, 100, []int{100}); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if err := table.Attach(b.ID, 100, []int{100}); !errors.Is(err, job.ErrDuplicateProcessGroup) {
			t.Errorf("expected ErrDuplicateProcessGroup: got '%v'", err)
		}
	})

	t.Run("Test attach unknown job", func(t *testing.T) {
		table := job.NewTable()

		if err := table.Attach(7, 100, []int{100}); !errors.Is(err, job.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound: got '%v'", err)
		}
	})

	t.Run("Test most recent active", func(t *testing.T) {
		table := job.NewTable()

		a := table.Insert("a &")
		b := table.Insert("b")
		table.Insert("c &")

		if _, err := table.SetState(b.ID, job.StateStopped); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		found, prev, ok := table.FindMostRecentActive(func(j job.Job) bool {
			return j.State == job.StateStopped
		})
		if !ok {
			t.Fatal("expected to find stopped job")
		}

		if found.ID != b.ID {
			t.Errorf("expected found id: got '%d', want '%d'", found.ID, b.ID)
		}

		if prev.ID != a.ID {
			t.Errorf("expected prev id: got '%d', want '%d'", prev.ID, a.ID)
		}

		found, prev, ok = table.FindMostRecentActive(func(j job.Job) bool {
			return j.State != job.StateDone
		})
		if !ok || found.ID != 3 || prev.ID != b.ID {
			t.Errorf("expected job 3 after job 2: got %d after %d (ok=%t)", found.ID, prev.ID, ok)
		}
	})

	t.Run("Test most recent active on first job", func(t *testing.T) {
		table := job.NewTable()

		a := table.Insert("a &")

		found, prev, ok := table.FindMostRecentActive(func(job.Job) bool { return true })
		if !ok || found.ID != a.ID {
			t.Fatalf("expected to find job %d: got %d (ok=%t)", a.ID, found.ID, ok)
		}

		if prev.ID != 0 {
			t.Errorf("expected zero predecessor: got '%d'", prev.ID)
		}
	})

	t.Run("Test most recent active on empty table", func(t *testing.T) {
		table := job.NewTable()

		if _, _, ok := table.FindMostRecentActive(func(job.Job) bool { return true }); ok {
			t.Error("expected no job in empty table")
		}
	})
}

func TestTableTransitions(t *testing.T) {
	t.Parallel()

	t.Run("Test pipeline done only after all members exit", func(t *testing.T) {
		table := job.NewTable()

		a := table.Insert("ls | wc &")
		if err := table.Attach(a.ID, 200, []int{200, 201}); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		got, ok := table.Exited(200)
		if !ok {
			t.Fatal("expected leader to belong to job")
		}
		if got.State != job.StateRunning {
			t.Errorf("expected state after leader exit: got '%s', want 'Running'", got.State)
		}

		got, ok = table.Exited(201)
		if !ok {
			t.Fatal("expected second stage to belong to job")
		}
		if got.State != job.StateDone {
			t.Errorf("expected state after both exit: got '%s', want 'Done'", got.State)
		}

		if _, ok := table.Exited(201); ok {
			t.Error("expected reaped pid not to match again")
		}
	})

	t.Run("Test stop only applies to leader", func(t *testing.T) {
		table := job.NewTable()

		a := table.Insert("ls | wc")
		if err := table.Attach(a.ID, 300, []int{300, 301}); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if _, ok := table.Stopped(301); ok {
			t.Error("expected non-leader stop to be ignored")
		}

		got, ok := table.Stopped(300)
		if !ok {
			t.Fatal("expected leader stop to apply")
		}

		if got.State != job.StateStopped {
			t.Errorf("expected state: got '%s', want 'Stopped'", got.State)
		}
	})

	t.Run("Test stop of remaining stage after leader exits", func(t *testing.T) {
		table := job.NewTable()

		a := table.Insert("true | sleep 30")
		if err := table.Attach(a.ID, 300, []int{300, 301}); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if _, ok := table.Exited(300); !ok {
			t.Fatal("expected leader exit to be recorded")
		}

		got, ok := table.Stopped(301)
		if !ok {
			t.Fatal("expected stop of remaining stage to apply")
		}

		if got.State != job.StateStopped {
			t.Errorf("expected state: got '%s', want 'Stopped'", got.State)
		}

		if _, ok := table.Stopped(999); ok {
			t.Error("expected stop of unknown pid to be ignored")
		}
	})

	t.Run("Test unknown pid", func(t *testing.T) {
		table := job.NewTable()

		if _, ok := table.Exited(12345); ok {
			t.Error("expected unknown pid to be ignored")
		}

		if _, ok := table.Stopped(12345); ok {
			t.Error("expected unknown pid to be ignored")
		}
	})

	t.Run("Test promote", func(t *testing.T) {
		table := job.NewTable()

		a := table.Insert("a &")
		b := table.Insert("b &")
		c := table.Insert("c &")

		got, err := table.Promote(a.ID)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}
		if got.Marker != job.MarkerCurrent {
			t.Errorf("expected promoted job to be current: got '%s'", got.Marker)
		}

		gotB, _ := table.FindByID(b.ID)
		gotC, _ := table.FindByID(c.ID)

		if gotB.Marker != job.MarkerNone {
			t.Errorf("expected old previous to lose marker: got '%s'", gotB.Marker)
		}
		if gotC.Marker != job.MarkerPrevious {
			t.Errorf("expected old current to become previous: got '%s'", gotC.Marker)
		}

		testMarkers(t, table)

		table.Remove(a.ID)

		gotC, _ = table.FindByID(c.ID)
		if gotC.Marker != job.MarkerCurrent {
			t.Errorf("expected previous to become current after removal: got '%s'", gotC.Marker)
		}

		testMarkers(t, table)
	})

	t.Run("Test set state on unknown job", func(t *testing.T) {
		table := job.NewTable()

		if _, err := table.SetState(1, job.StateRunning); !errors.Is(err, job.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound: got '%v'", err)
		}
	})
}
