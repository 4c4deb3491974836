package state

import "strings"

// Handle is an opaque reference into a StringPool. The zero Handle refers to
// the interned empty string sentinel.
type Handle uint32

type internedString struct {
	text     string
	refcount int
}

// StringPool interns gameType/missionType tags so filter comparison reduces
// to handle equality instead of string comparison (spec §3). Matching is
// case-insensitive; the pool stores the first-seen casing.
//
// Grounded on original_source/include/masterd.h's tcUniqueString, which
// ServerStoreRAM uses identically for gameType/missionType de-duplication.
type StringPool struct {
	byFold map[string]Handle
	byID   map[Handle]*internedString
	nextID Handle
}

func NewStringPool() *StringPool {
	return &StringPool{
		byFold: make(map[string]Handle),
		byID:   make(map[Handle]*internedString),
		nextID: 1, // 0 is reserved for the "empty" sentinel
	}
}

// Intern returns a handle for s, incrementing its refcount. An empty string
// always maps to the zero Handle and is never refcounted.
func (p *StringPool) Intern(s string) Handle {
	if s == "" {
		return 0
	}
	fold := strings.ToLower(s)
	if h, ok := p.byFold[fold]; ok {
		p.byID[h].refcount++
		return h
	}
	h := p.nextID
	p.nextID++
	p.byFold[fold] = h
	p.byID[h] = &internedString{text: s, refcount: 1}
	return h
}

// Release decrements h's refcount and removes it from the pool at zero.
// Releasing the zero Handle is a no-op.
func (p *StringPool) Release(h Handle) {
	if h == 0 {
		return
	}
	e, ok := p.byID[h]
	if !ok {
		return
	}
	e.refcount--
	if e.refcount <= 0 {
		delete(p.byID, h)
		delete(p.byFold, strings.ToLower(e.text))
	}
}

// Text returns the stored text for h (its first-seen casing), or "" for the
// zero Handle or an unknown handle.
func (p *StringPool) Text(h Handle) string {
	if h == 0 {
		return ""
	}
	e, ok := p.byID[h]
	if !ok {
		return ""
	}
	return e.text
}

// Lookup returns the handle for s without interning it, so callers (e.g. the
// filter path) can short-circuit when a requested tag was never interned.
func (p *StringPool) Lookup(s string) (Handle, bool) {
	if s == "" {
		return 0, true
	}
	h, ok := p.byFold[strings.ToLower(s)]
	return h, ok
}

// Len reports the number of distinct interned strings (excluding the empty
// sentinel).
func (p *StringPool) Len() int { return len(p.byID) }

// All returns every interned string's text, in an unspecified order; callers
// that need a stable order (e.g. sendTypesResponse-equivalent budgeting)
// should sort the result themselves.
func (p *StringPool) All() []string {
	out := make([]string, 0, len(p.byID))
	for _, e := range p.byID {
		out = append(out, e.text)
	}
	return out
}

// isAny reports whether s is the case-insensitive "any" sentinel that spec
// §4.3 treats as "filter field absent" for gameType/missionType.
func isAny(s string) bool {
	return strings.EqualFold(s, "any")
}
