package repos

import "errors"

// ErrRunActive is returned by CrossMatchRunRepo.Begin when another run is
// still in "running" state.
var ErrRunActive = errors.New("a cross-match run is already active")
