package apps

import "errors"

var ErrNotFound = errors.New("not found")
