package models

import "time"

// Buyer is a registered customer addressed by RUT, the tax-id natural key.
type Buyer struct {
	RUT       string    `gorm:"column:rut;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Email     string    `gorm:"column:email;not null"`
	Phone     *string   `gorm:"column:phone"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
