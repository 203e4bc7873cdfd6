// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package handshake

import "errors"

// Typed errors.
var (
	errBufferTooSmall      = errors.New("buffer is too small")                            //nolint:err113
	errLengthOverflow      = errors.New("handshake length does not fit in 24 bits")       //nolint:err113
	errFragmentOutOfBounds = errors.New("fragment does not fit in the declared length") //nolint:err113
)
