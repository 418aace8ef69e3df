package audit

import (
	"context"
	"fmt"
	"regexp"
)

// CRUDFilter decides whether a CRUD event is persisted at all.
// Filters run in registration order and short-circuit on the first
// false.
type CRUDFilter func(ctx context.Context, event *CRUDEvent) bool

// ExcludeObjectTypes drops events for the named object types.
func ExcludeObjectTypes(types ...string) CRUDFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(ctx context.Context, event *CRUDEvent) bool {
		_, excluded := set[event.ObjectType]
		return !excluded
	}
}

// ExcludeActors drops events recorded for the named actor ids.
func ExcludeActors(ids ...string) CRUDFilter {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(ctx context.Context, event *CRUDEvent) bool {
		_, excluded := set[event.ActorID]
		return !excluded
	}
}

// URLFilter decides which request paths produce RequestEvents.
// An empty include list admits every path; excludes win over includes.
type URLFilter struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewURLFilter compiles the include/exclude pattern lists. A pattern
// that does not compile fails construction, not capture time.
func NewURLFilter(include, exclude []string) (*URLFilter, error) {
	f := &URLFilter{}
	for _, p := range include {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("audit: include pattern %q: %w", p, err)
		}
		f.include = append(f.include, re)
	}
	for _, p := range exclude {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("audit: exclude pattern %q: %w", p, err)
		}
		f.exclude = append(f.exclude, re)
	}
	return f, nil
}

// Match reports whether a request to path should be captured.
func (f *URLFilter) Match(path string) bool {
	if f == nil {
		return true
	}
	for _, re := range f.exclude {
		if re.MatchString(path) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, re := range f.include {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
