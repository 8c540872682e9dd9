package model

import "time"

// User is the slice of the user aggregate that the mutation engines grow:
// the color palette and the set of mentioned names.
type User struct {
	ID        string    `json:"_id" bson:"_id"`
	Colors    Palette   `json:"colors" bson:"colors"`
	Names     []string  `json:"names" bson:"names"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Palette maps activity and variable names to display colors. Entries are
// only ever added.
type Palette struct {
	Activities []NamedColor `json:"activities" bson:"activities"`
	Variables  []NamedColor `json:"variables" bson:"variables"`
	Note       string       `json:"note" bson:"note"`
}

// NamedColor binds a name to a "#rrggbb" color.
type NamedColor struct {
	Name  string `json:"name" bson:"name"`
	Color string `json:"color" bson:"color"`
}

// ColorFor returns the color assigned to name in the facet's namespace.
func (p *Palette) ColorFor(facet Facet, name string) (string, bool) {
	var list []NamedColor
	switch facet {
	case FacetActivity:
		list = p.Activities
	case FacetVariable:
		list = p.Variables
	default:
		return "", false
	}
	for _, nc := range list {
		if nc.Name == name {
			return nc.Color, true
		}
	}
	return "", false
}

// InUse returns the set of every color currently assigned by the palette.
func (p *Palette) InUse() map[string]bool {
	used := make(map[string]bool, len(p.Activities)+len(p.Variables)+1)
	for _, nc := range p.Activities {
		used[nc.Color] = true
	}
	for _, nc := range p.Variables {
		used[nc.Color] = true
	}
	if p.Note != "" {
		used[p.Note] = true
	}
	return used
}
