// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"fmt"
	"slices"

	"github.com/samber/oops"
)

// Code returns the oops error code carried by err, or "" when err has none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch code := oopsErr.Code().(type) {
	case nil:
		return ""
	case string:
		return code
	default:
		return fmt.Sprint(code)
	}
}

// HasCode reports whether err carries one of codes.
func HasCode(err error, codes ...string) bool {
	code := Code(err)
	return code != "" && slices.Contains(codes, code)
}

// Hint returns the hint attached to err, or "" when it has none.
func Hint(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	return oopsErr.Hint()
}
