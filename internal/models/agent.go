package models

import "time"

// DefaultGroup is the group assigned to agents that register without one.
const DefaultGroup = "default"

// Agent is a registered participant in the switchboard.
type Agent struct {
	ID           string    `gorm:"primaryKey;size:96" json:"id"`
	Name         string    `gorm:"size:64;not null;index" json:"name"`
	Description  string    `gorm:"type:text" json:"description,omitempty"`
	Group        string    `gorm:"column:group_name;size:64;index" json:"group"`
	RouteTarget  string    `gorm:"size:256" json:"route_target,omitempty"`
	Status       string    `gorm:"size:256" json:"status,omitempty"`
	Seq          uint64    `gorm:"index" json:"-"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `gorm:"index" json:"last_seen"`
}
