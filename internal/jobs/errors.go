package jobs

import "errors"

// ErrTransitionRejected reports a conditional update that matched no row
// because the job was no longer in an accepted status. Callers treat it as
// "someone else already moved this job" rather than as a storage failure.
var ErrTransitionRejected = errors.New("job transition rejected")
