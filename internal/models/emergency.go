package models

import (
	"time"

	"github.com/google/uuid"
)

type EmergencyStatus string

const (
	EmergencyStatusActive   EmergencyStatus = "active"
	EmergencyStatusPending  EmergencyStatus = "pending"
	EmergencyStatusResolved EmergencyStatus = "resolved"
)

type EmergencyReport struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	UserName      string          `json:"user_name"`
	EmergencyType string          `json:"emergency_type"`
	SpecificType  string          `json:"specific_type"`
	Location      string          `json:"location"`
	Description   string          `json:"description"`
	Status        EmergencyStatus `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// RiskPrediction is a heuristic forecast derived from recent reports.
// Risk tiers and confidence values are fixed formulas, not model output.
type RiskPrediction struct {
	Kind       string `json:"kind"` // "type" or "location"
	Subject    string `json:"subject"`
	RiskLevel  string `json:"risk_level"` // Low, Medium, High
	Confidence int    `json:"confidence"`
	Count      int    `json:"count"`
}
