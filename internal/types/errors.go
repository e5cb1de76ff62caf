// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package types

import "errors"

// Error taxonomy shared by every core component (§7). Callers use
// errors.Is against these sentinels; component-specific detail is wrapped
// around them with fmt.Errorf("%w: ...", ...).
var (
	ErrArg       = errors.New("ARG")
	ErrTooBig    = errors.New("TOO_BIG")
	ErrDuplicate = errors.New("DUPLICATE")
	ErrNotFound  = errors.New("NOT_FOUND")
	ErrBadType   = errors.New("BAD_TYPE")
	ErrAlloc     = errors.New("ALLOC")
	ErrAuth      = errors.New("AUTH")
	ErrMsgSend   = errors.New("MSG_SEND")
)
