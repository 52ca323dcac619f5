package scheduler

import (
	"sbvc/internal/history"
)

// The helpers below submit the engine mutations and hand back a snapshot
// taken after the mutation, which the caller renders instead of touching
// the engine.

func snapshotAfter(mutate func(e *history.Engine) error) Operation {
	return func(e *history.Engine) (any, error) {
		if err := mutate(e); err != nil {
			return nil, err
		}
		return e.Snapshot()
	}
}

func (s *Scheduler) Commit() *Handle {
	return s.Submit("commit", snapshotAfter(func(e *history.Engine) error {
		_, err := e.Commit()
		return err
	}))
}

func (s *Scheduler) Checkout(id uint32, discard bool) *Handle {
	return s.Submit("checkout", snapshotAfter(func(e *history.Engine) error {
		return e.Checkout(id, discard)
	}))
}

func (s *Scheduler) Rename(name string) *Handle {
	return s.Submit("rename", snapshotAfter(func(e *history.Engine) error {
		return e.Rename(name)
	}))
}

func (s *Scheduler) Delete() *Handle {
	return s.Submit("delete", snapshotAfter(func(e *history.Engine) error {
		return e.Delete()
	}))
}

func (s *Scheduler) Rollback() *Handle {
	return s.Submit("rollback", snapshotAfter(func(e *history.Engine) error {
		return e.Rollback()
	}))
}

func (s *Scheduler) SetTrackedFile(path string) *Handle {
	return s.Submit("set_tracked_file", snapshotAfter(func(e *history.Engine) error {
		return e.SetTrackedFile(path)
	}))
}
