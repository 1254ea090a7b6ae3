package model

import "fmt"

// Location is a geographic point with its postal context. Once embedded in a
// request it is never mutated; distance computations are pure reads.
type Location struct {
	ID        string
	Latitude  float64
	Longitude float64
	Address   string
	Area      string
	City      string
	Country   string
}

// Validate checks that the coordinates form a valid geographic point.
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range [-90,90]", l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range [-180,180]", l.Longitude)
	}
	return nil
}
