package job

import "errors"

var (
	ErrJobNotFound           = errors.New("job not found")
	ErrDuplicateProcessGroup = errors.New("process group already tracked")
)
