package transport

import "codeberg.org/mutker/atommanctl/internal/errors"

const ErrShortWrite = errors.ErrorCode("transport_short_write")
