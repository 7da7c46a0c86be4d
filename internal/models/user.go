package models

// Role represents user role in the platform.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleHost     Role = "host"
	RoleAttendee Role = "attendee"
)
