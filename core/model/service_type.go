package model

import "fmt"

// RiskLevel classifies how hazardous a service category is.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
)

// String returns a human-readable representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	default:
		return "unknown"
	}
}

// PriceType defines how a service is billed.
type PriceType int

const (
	PricePerHour PriceType = iota
	PriceFixed
)

// String returns a human-readable representation of the price type.
func (p PriceType) String() string {
	switch p {
	case PricePerHour:
		return "HOUR"
	case PriceFixed:
		return "FIXED"
	default:
		return "unknown"
	}
}

// ServiceType is catalog reference data describing one service category.
// The dispatch core only reads it.
type ServiceType struct {
	ID                       string
	Name                     string
	RiskLevel                RiskLevel
	BasePrice                float64
	DefaultPriceType         PriceType
	EstimatedDurationMinutes int
}

// Validate checks that the catalog entry is sound.
func (s ServiceType) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("service type id must not be empty")
	}
	if s.BasePrice <= 0 {
		return fmt.Errorf("base price must be positive")
	}
	if s.EstimatedDurationMinutes < 15 || s.EstimatedDurationMinutes > 480 {
		return fmt.Errorf("estimated duration %d out of range [15,480]", s.EstimatedDurationMinutes)
	}
	return nil
}
