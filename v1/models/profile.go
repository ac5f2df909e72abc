package models

// Profile carries the social and domain names associated with an address.
type Profile struct {
	Address     string   `json:"address"`
	SocialNames []string `json:"social_names,omitempty"`
	DomainNames []string `json:"domain_names,omitempty"`
}

// IsEmpty reports whether the profile has nothing to show.
func (p Profile) IsEmpty() bool {
	return len(p.SocialNames) == 0 && len(p.DomainNames) == 0
}
