// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vici

// Token is one element of a message as seen by a [Scanner].
type Token struct {
	// Offset is the position of the element's tag byte.
	Offset int

	Tag ElementTag

	// Depth is the number of sections and lists enclosing the element.
	// End tags have the depth of the element they close.
	Depth int

	// Name is the key of a SectionStart, ListStart or KeyValue element.
	Name string

	// Value is the value of a KeyValue or ListItem element. It aliases
	// the scanned data and is not validated as UTF-8.
	Value []byte
}

// Scanner iterates over the elements of an encoded message without
// decoding it into Go values, checking that elements nest correctly.
//
//	scanner := vici.NewScanner(data)
//	for scanner.Scan() {
//		token := scanner.Token()
//		...
//	}
//	if err := scanner.Err(); err != nil {
//		...
//	}
type Scanner struct {
	read  *sliceReader
	open  []ElementTag
	token Token
	err   error
}

// NewScanner returns a scanner over data.
func NewScanner(data []byte) *Scanner {
	return &Scanner{read: newSliceReader(data)}
}

// Scan advances to the next element. It returns false at the end of the
// message or on error.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	offset := s.read.position()
	tag, err := s.read.parseTag()
	if err != nil {
		if isEOF(err) && len(s.open) == 0 {
			return false
		}
		s.err = err
		return false
	}
	s.token = Token{Offset: offset, Tag: tag, Depth: len(s.open)}

	inList := len(s.open) > 0 && s.open[len(s.open)-1] == ListStart
	switch tag {
	case SectionStart, KeyValue, ListStart:
		if inList {
			s.err = unexpectedElement(tag, offset)
			return false
		}
		name, err := s.read.parseKey(nil)
		if err != nil {
			s.err = err
			return false
		}
		s.token.Name = string(name)
		if tag == KeyValue {
			if s.token.Value, err = s.read.parseRawValue(nil); err != nil {
				s.err = err
				return false
			}
		} else {
			s.open = append(s.open, tag)
		}
	case ListItem:
		if !inList {
			s.err = unexpectedElement(tag, offset)
			return false
		}
		if s.token.Value, err = s.read.parseRawValue(nil); err != nil {
			s.err = err
			return false
		}
	case SectionEnd, ListEnd:
		opener := SectionStart
		if tag == ListEnd {
			opener = ListStart
		}
		if len(s.open) == 0 || s.open[len(s.open)-1] != opener {
			s.err = unexpectedElement(tag, offset)
			return false
		}
		s.open = s.open[:len(s.open)-1]
		s.token.Depth = len(s.open)
	}
	return true
}

// Token returns the element read by the last successful Scan.
func (s *Scanner) Token() Token {
	return s.token
}

// Err returns the first error encountered, or nil if the message was
// scanned to its end.
func (s *Scanner) Err() error {
	return s.err
}

// Validate checks that data is a structurally valid message: every tag
// is known, every key is valid UTF-8, and every section and list is
// closed. Values are not inspected.
func Validate(data []byte) error {
	scanner := NewScanner(data)
	for scanner.Scan() {
	}
	return scanner.Err()
}
