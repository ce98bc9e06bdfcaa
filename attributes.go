package vpathfs

import (
	"io/fs"
	"strings"
	"sync"
	"time"
)

// Windows file attribute flags as defined in MS-FSCC.
const (
	FILE_ATTRIBUTE_READONLY  = 0x00000001
	FILE_ATTRIBUTE_HIDDEN    = 0x00000002
	FILE_ATTRIBUTE_SYSTEM    = 0x00000004
	FILE_ATTRIBUTE_DIRECTORY = 0x00000010
	FILE_ATTRIBUTE_ARCHIVE   = 0x00000020
	FILE_ATTRIBUTE_NORMAL    = 0x00000080
)

// Attributes is the boolean attribute bitmask a provider returns in a single
// round trip.
type Attributes uint32

const (
	AttrExists    Attributes = 0x01
	AttrRegular   Attributes = 0x02
	AttrDirectory Attributes = 0x04
	AttrHidden    Attributes = 0x08
	AttrShare     Attributes = 0x10
	AttrServer    Attributes = 0x20
	AttrWorkgroup Attributes = 0x40
)

// Has reports whether every bit of flag is set.
func (a Attributes) Has(flag Attributes) bool {
	return a&flag == flag
}

func (a Attributes) String() string {
	if a&AttrExists == 0 {
		return "Missing"
	}

	names := []struct {
		flag Attributes
		name string
	}{
		{AttrRegular, "Regular"},
		{AttrDirectory, "Directory"},
		{AttrHidden, "Hidden"},
		{AttrShare, "Share"},
		{AttrServer, "Server"},
		{AttrWorkgroup, "Workgroup"},
	}

	var parts []string
	for _, n := range names {
		if a&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "Exists"
	}
	return strings.Join(parts, ", ")
}

// attributesFromWindows converts MS-FSCC file attributes to the boolean
// bitmask. Only existing files have Windows attributes.
func attributesFromWindows(attrs uint32) Attributes {
	a := AttrExists
	if attrs&FILE_ATTRIBUTE_DIRECTORY != 0 {
		a |= AttrDirectory
	} else {
		a |= AttrRegular
	}
	if attrs&FILE_ATTRIBUTE_HIDDEN != 0 {
		a |= AttrHidden
	}
	return a
}

// WindowsAttributer is implemented by FileInfo values that carry MS-FSCC
// attributes.
type WindowsAttributer interface {
	WindowsAttributes() uint32
}

// attributesFromInfo derives the bitmask from a FileInfo, preferring the
// Windows attributes when the provider supplies them.
func attributesFromInfo(info fs.FileInfo) Attributes {
	if wa, ok := info.(WindowsAttributer); ok {
		return attributesFromWindows(wa.WindowsAttributes())
	}

	a := AttrExists
	if info.IsDir() {
		a |= AttrDirectory
	} else if info.Mode().IsRegular() {
		a |= AttrRegular
	}
	if strings.HasPrefix(info.Name(), ".") {
		a |= AttrHidden
	}
	return a
}

// modeToWindowsAttributes is the inverse best-effort mapping used by fakes.
func modeToWindowsAttributes(mode fs.FileMode, hidden bool) uint32 {
	attrs := uint32(0)
	if mode&0222 == 0 {
		attrs |= FILE_ATTRIBUTE_READONLY
	}
	if mode.IsDir() {
		attrs |= FILE_ATTRIBUTE_DIRECTORY
	} else {
		attrs |= FILE_ATTRIBUTE_ARCHIVE
	}
	if hidden {
		attrs |= FILE_ATTRIBUTE_HIDDEN
	}
	if attrs == 0 {
		attrs = FILE_ATTRIBUTE_NORMAL
	}
	return attrs
}

// AttributeSnapshot memoizes the attributes of one path holder. Each field
// group is populated at most once until invalidated, and concurrent readers
// of an unpopulated group wait for the single in-flight fetch.
type AttributeSnapshot struct {
	attrMu  sync.Mutex
	attrSet bool
	attrs   Attributes
	attrErr error

	sizeMu  sync.Mutex
	sizeSet bool
	size    int64
	sizeErr error

	timeMu  sync.Mutex
	timeSet bool
	modTime time.Time
	timeErr error
}

// Attributes returns the memoized bitmask, fetching it on first use. A failed
// fetch is memoized as "does not exist" together with its error.
func (s *AttributeSnapshot) Attributes(fetch func() (Attributes, error)) (Attributes, error) {
	s.attrMu.Lock()
	defer s.attrMu.Unlock()

	if !s.attrSet {
		a, err := fetch()
		if err != nil {
			a = 0
		}
		s.attrs, s.attrErr, s.attrSet = a, err, true
	}
	return s.attrs, s.attrErr
}

// Length returns the memoized size, fetching it on first use.
func (s *AttributeSnapshot) Length(fetch func() (int64, error)) (int64, error) {
	s.sizeMu.Lock()
	defer s.sizeMu.Unlock()

	if !s.sizeSet {
		n, err := fetch()
		if err != nil {
			n = 0
		}
		s.size, s.sizeErr, s.sizeSet = n, err, true
	}
	return s.size, s.sizeErr
}

// ModTime returns the memoized modification time, fetching it on first use.
func (s *AttributeSnapshot) ModTime(fetch func() (time.Time, error)) (time.Time, error) {
	s.timeMu.Lock()
	defer s.timeMu.Unlock()

	if !s.timeSet {
		t, err := fetch()
		if err != nil {
			t = time.Time{}
		}
		s.modTime, s.timeErr, s.timeSet = t, err, true
	}
	return s.modTime, s.timeErr
}

// SetAttributes pre-seeds the bitmask, suppressing the provider round trip.
func (s *AttributeSnapshot) SetAttributes(a Attributes) {
	s.attrMu.Lock()
	s.attrs, s.attrErr, s.attrSet = a, nil, true
	s.attrMu.Unlock()
}

// SetLength pre-seeds the size.
func (s *AttributeSnapshot) SetLength(n int64) {
	s.sizeMu.Lock()
	s.size, s.sizeErr, s.sizeSet = n, nil, true
	s.sizeMu.Unlock()
}

// SetModTime pre-seeds the modification time.
func (s *AttributeSnapshot) SetModTime(t time.Time) {
	s.timeMu.Lock()
	s.modTime, s.timeErr, s.timeSet = t, nil, true
	s.timeMu.Unlock()
}

// Invalidate drops every memoized group.
func (s *AttributeSnapshot) Invalidate() {
	s.attrMu.Lock()
	s.attrSet, s.attrErr = false, nil
	s.attrMu.Unlock()

	s.sizeMu.Lock()
	s.sizeSet, s.sizeErr = false, nil
	s.sizeMu.Unlock()

	s.timeMu.Lock()
	s.timeSet, s.timeErr = false, nil
	s.timeMu.Unlock()
}

// seed copies what a directory listing already told us about an entry.
func (s *AttributeSnapshot) seed(e DirEntry) {
	s.SetAttributes(e.Attributes)
	if e.Attributes&AttrRegular != 0 {
		s.SetLength(e.Size)
	}
	if !e.ModTime.IsZero() {
		s.SetModTime(e.ModTime)
	}
}
