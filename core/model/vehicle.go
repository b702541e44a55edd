package model

import "strings"

// Vehicle is a fleet vehicle that can be attached to a dispatch entry.
type Vehicle struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlateNumber string `json:"plate_number"`
	Brand       string `json:"brand,omitempty"`
	Model       string `json:"model,omitempty"`
	Available   bool   `json:"available"`
}

// Label returns a short human readable description such as "Alphard (ABC-123)".
func (v Vehicle) Label() string {
	switch {
	case v.Name != "" && v.PlateNumber != "":
		return v.Name + " (" + v.PlateNumber + ")"
	case v.Name != "":
		return v.Name
	case v.PlateNumber != "":
		return v.PlateNumber
	}
	return v.ID
}

// Driver is a fleet driver that can be attached to a dispatch entry.
type Driver struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Available bool   `json:"available"`
}

// Name returns the driver's full name, falling back to the identifier.
func (d Driver) Name() string {
	n := strings.TrimSpace(d.FirstName + " " + d.LastName)
	if n == "" {
		return d.ID
	}
	return n
}
