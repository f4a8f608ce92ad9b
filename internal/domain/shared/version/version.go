// Package version defines the optimistic-concurrency sentinel shared by every
// store. Repositories accept a write only when the caller's observed version
// still matches the stored one and return ErrConflict otherwise.
package version

import "errors"

var ErrConflict = errors.New("version: stale write rejected")
