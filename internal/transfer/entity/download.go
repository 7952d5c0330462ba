package entity

import "io"

// Download describes one download response. It is built per request and
// discarded once the byte stream completes.
//
// Filename is evaluated lazily so it reflects the session state at serve
// time, not at construction time. WriteContent must deliver a complete
// serialization or an error; it never leaves a truncated artifact visible.
type Download struct {
	Filename     func() string
	WriteContent func(w io.Writer) error
}
