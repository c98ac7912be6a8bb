package panel

import "codeberg.org/mutker/atommanctl/internal/errors"

const (
	ErrReadFrame  = errors.ErrReadFrame
	ErrWriteFrame = errors.ErrWriteFrame
	ErrFlushFrame = errors.ErrFlushFrame
)
