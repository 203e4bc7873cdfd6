// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package metrics

import (
	"fmt"
	"sync"
)

const capacity = 2

// labelPool avoids allocating a label slice for every observation.
var labelPool = sync.Pool{New: func() any { //nolint:gochecknoglobals
	s := make([]string, 0, capacity)

	return &s
}}

func getLabels() *[]string {
	s := labelPool.Get().(*[]string) //nolint:forcetypeassert
	*s = (*s)[:0]

	return s
}

func putLabels(s *[]string) {
	if c := cap(*s); c < capacity {
		panic(fmt.Sprintf("expected a label slice with capacity %d or greater, got %d", capacity, c))
	}
	labelPool.Put(s)
}
