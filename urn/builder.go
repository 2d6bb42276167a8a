package urn

import "fmt"

// Builder assembles a URN from its parts. NID and NSS are required.
type Builder struct {
	urn URN
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) NID(nid string) *Builder {
	b.urn.nid = nid
	return b
}

func (b *Builder) NSS(nss string) *Builder {
	b.urn.nss = nss
	return b
}

func (b *Builder) Path(path string) *Builder {
	b.urn.path, b.urn.hasPath = path, true
	return b
}

func (b *Builder) Query(query string) *Builder {
	b.urn.query, b.urn.hasQuery = query, true
	return b
}

func (b *Builder) Fragment(fragment string) *Builder {
	b.urn.fragment, b.urn.hasFragment = fragment, true
	return b
}

func (b *Builder) Build() (URN, error) {
	if b.urn.nid == "" {
		return URN{}, fmt.Errorf("%w: nid is required", ErrInvalid)
	}
	if b.urn.nss == "" {
		return URN{}, fmt.Errorf("%w: nss is required", ErrInvalid)
	}
	return b.urn, nil
}
