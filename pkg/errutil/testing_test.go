// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/paneplug/paneplug/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("DUPLICATE_ID").Errorf("id 3 is in use")
	errutil.AssertErrorCode(t, err, "DUPLICATE_ID")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("plugin_id", 3).Errorf("id 3 is in use")
	errutil.AssertErrorContext(t, err, "plugin_id", 3)
}
