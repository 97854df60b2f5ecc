package oncall

import "errors"

// Directory errors.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrTeamNotFound     = errors.New("team not found")
	ErrScheduleNotFound = errors.New("schedule not found")
)
