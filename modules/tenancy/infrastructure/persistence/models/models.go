package models

import (
	"time"
)

type Tenant struct {
	ID           string
	Identifier   string
	PartitionKey string
	Name         string
	IsActive     bool
	PlanLimits   []byte
	KeyVersion   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type User struct {
	ID           string
	TenantID     string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}
