package format

import "errors"

var errNotArchive = errors.New("not an archive")
