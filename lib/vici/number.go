// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vici

import (
	"strconv"
	"strings"
)

// AppendFloat appends the shortest text that parses back to f at the
// given bit size. Values whose decimal exponent lies in [-5, 16) are
// written in plain decimal notation, with ".0" added to integral
// values (100000000.0, 0.00025). Other finite values use an exponent
// without sign padding (1e16, 2.5e-7). NaN and infinities are written
// as strconv formats them.
func AppendFloat(dst []byte, f float64, bitSize int) []byte {
	scientific := strconv.FormatFloat(f, 'e', -1, bitSize)
	mark := strings.IndexByte(scientific, 'e')
	if mark < 0 {
		return append(dst, scientific...)
	}
	exponent, err := strconv.Atoi(scientific[mark+1:])
	if err != nil {
		return append(dst, scientific...)
	}

	if exponent >= -5 && exponent < 16 {
		start := len(dst)
		dst = strconv.AppendFloat(dst, f, 'f', -1, bitSize)
		if !strings.ContainsRune(string(dst[start:]), '.') {
			dst = append(dst, ".0"...)
		}
		return dst
	}
	dst = append(dst, scientific[:mark+1]...)
	return strconv.AppendInt(dst, int64(exponent), 10)
}
