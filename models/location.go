package models

import "time"

// Location is a place where examination sessions are held
type Location struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Fixed     bool       `json:"fixed"`
	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// FederalLocations is the immutable seeded list of federal court locations
var FederalLocations = []Location{
	{ID: "jf-15-vara", Name: "15ª Vara Federal", Fixed: true},
	{ID: "jf-17-vara", Name: "17ª Vara Federal", Fixed: true},
	{ID: "jf-23-vara", Name: "23ª Vara Federal", Fixed: true},
	{ID: "jf-25-vara", Name: "25ª Vara Federal", Fixed: true},
	{ID: "jf-27-vara", Name: "27ª Vara Federal", Fixed: true},
	{ID: "jef-juazeiro", Name: "JEF Juazeiro do Norte", Fixed: true},
}
