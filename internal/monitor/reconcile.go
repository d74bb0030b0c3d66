package monitor

import (
	"errors"
	"fmt"

	apperrors "github.com/repowatchapp/repowatch-server/internal/errors"
)

// errRaceLost marks a register/unregister attempt that lost a race with
// concurrent filesystem mutation: the target vanished or stopped being a
// directory between the desired-set computation and the syscall. Expected
// under load; never surfaced.
var errRaceLost = errors.New("watch target vanished")

// registrar applies watch registrations to a platform watch mechanism.
// Implementations classify platform errors: race-lost conditions are
// reported as errRaceLost, watch-count exhaustion as apperrors.ErrWatchLimit,
// anything else raw.
type registrar interface {
	register(dir string) (int, error)
	unregister(dir string, wd int) error
}

// watchSet tracks the directories currently registered for per-directory
// notification, mapping each absolute path to its platform watch descriptor.
type watchSet struct {
	watched map[string]int
}

func newWatchSet() *watchSet {
	return &watchSet{watched: make(map[string]int)}
}

func (s *watchSet) size() int {
	return len(s.watched)
}

// reconcile brings the registered set in line with desired: directories no
// longer desired are unregistered, newly desired ones registered. Race-lost
// outcomes on either side are swallowed. A watch-limit failure aborts
// reconciliation and returns apperrors.ErrWatchLimit; the caller must shut
// the backend down rather than keep a half-populated set. Any other failure
// propagates.
func (s *watchSet) reconcile(reg registrar, desired map[string]struct{}) error {
	for dir, wd := range s.watched {
		if _, ok := desired[dir]; ok {
			continue
		}
		if err := reg.unregister(dir, wd); err != nil && !errors.Is(err, errRaceLost) {
			return fmt.Errorf("unwatch %s: %w", dir, err)
		}
		delete(s.watched, dir)
	}

	for dir := range desired {
		if _, ok := s.watched[dir]; ok {
			continue
		}
		wd, err := reg.register(dir)
		switch {
		case err == nil:
			s.watched[dir] = wd
		case errors.Is(err, errRaceLost):
			// Vanished or no longer a directory; skip.
		case errors.Is(err, apperrors.ErrWatchLimit):
			return err
		default:
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return nil
}
