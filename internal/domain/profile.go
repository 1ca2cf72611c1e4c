package domain

// Profile is the owner's business profile. It owns at most one Supplier
// describing the owner's own business and any number of Locations.
type Profile struct {
	Meta
	BusinessName string
	ContactName  string
	Phone        string
	Email        string
	Supplier     *Supplier
	Locations    []Location
}

// Supplier is either the profile's own business (ProfileID set) or an
// affiliate the owner trades with (ProfileID empty).
type Supplier struct {
	Meta
	ProfileID string
	Name      string
	Phone     string
	Email     string
	Linked    bool
}

type Location struct {
	ID        string
	ProfileID string
	Label     string
	Address   string
	Latitude  float64
	Longitude float64
	Deleted   bool
}
