package models

import "time"

// Review is a user's rating of a product, 1 to 5.
type Review struct {
	ID        string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ProductID string     `json:"productId" gorm:"type:varchar(36);index;not null"`
	UserID    string     `json:"userId" gorm:"type:varchar(36);index;not null"`
	User      *User      `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Rating    int        `json:"rating" gorm:"not null"`
	Comment   string     `json:"comment" gorm:"type:text"`
	DeletedAt *time.Time `json:"-" gorm:"index"`
	CreatedAt time.Time  `json:"createdAt" gorm:"index"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
