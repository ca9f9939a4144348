// SPDX-License-Identifier: MIT

package cache

import "errors"

// ErrEmptyProgramID is returned when an entry without a program id is stored.
var ErrEmptyProgramID = errors.New("scheduled entry has no program id")
