package feed

import "fmt"

// Attribute names accepted by Feed.Attribute.
const (
	AttrURI         = "uri"
	AttrTitle       = "title"
	AttrDescription = "description"
	AttrLastUpdated = "lastupdated"
	AttrItems       = "items"
)

// Attribute looks up a declared attribute by name, for callers that address fields dynamically
// (templates, the CLI filter). Declared attributes never fail, even when unset.
func (f *Feed) Attribute(name string) (any, error) {
	switch name {
	case AttrURI:
		return f.uri, nil
	case AttrTitle:
		return f.title, nil
	case AttrDescription:
		return f.description, nil
	case AttrLastUpdated:
		return f.lastUpdatedAt, nil
	case AttrItems:
		return append([]Item(nil), f.items...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
	}
}
