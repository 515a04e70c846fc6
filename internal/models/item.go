package models

// Item is a catalog entry presented in a round. Value is the year players guess.
type Item struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	Title       string `gorm:"size:255;not null" json:"title"`
	MediaURL    string `gorm:"size:500" json:"media_url"`
	Description string `gorm:"type:text" json:"description"`
	Value       int    `gorm:"not null" json:"value"`
	Hint        string `gorm:"size:500" json:"hint,omitempty"`
}
