package platform

import (
	"context"
	"sort"
)

// StaticStore serves a fixed set of platforms, typically the one from the
// environment.
type StaticStore map[string]Platform

func NewStaticStore(ps ...Platform) StaticStore {
	s := StaticStore{}
	for _, p := range ps {
		if p.Issuer != "" {
			s[p.Issuer] = p
		}
	}
	return s
}

func (s StaticStore) Get(_ context.Context, issuer string) (Platform, error) {
	p, ok := s[issuer]
	if !ok {
		return Platform{}, ErrNotFound
	}
	return p, nil
}

func (s StaticStore) List(context.Context) ([]Platform, error) {
	out := make([]Platform, 0, len(s))
	for _, p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Issuer < out[j].Issuer })
	return out, nil
}

func (StaticStore) Upsert(context.Context, Platform) (Platform, error) { return Platform{}, ErrReadOnly }
func (StaticStore) Delete(context.Context, string) error               { return ErrReadOnly }
