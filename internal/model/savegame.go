package model

import "time"

// SaveGame is the latest snapshot of one player's city.
//
// There is at most one row per user (UNIQUE user_id). Saving replaces every
// field; nothing is merged with the previous snapshot.
type SaveGame struct {
	UserID              string    `json:"-"                   db:"user_id"`
	CO2Tons             float64   `json:"co2Tons"             db:"co2_tons"`
	CitizenSatisfaction string    `json:"citizenSatisfaction" db:"citizen_satisfaction"`
	Budget              int64     `json:"budget"              db:"budget"`
	TopTags             []string  `json:"topTags"             db:"top_tags"` // stored as a JSON array
	AICityName          string    `json:"aiCityName"          db:"ai_city_name"`
	Revision            int64     `json:"-"                   db:"revision"` // 1 after the first save
	CreatedAt           time.Time `json:"-"                   db:"created_at"`
	UpdatedAt           time.Time `json:"lastSaved"           db:"updated_at"`
}

// CityMetrics are the gameplay numbers the naming proxy turns into a prompt.
type CityMetrics struct {
	CO2Tons             float64  `json:"co2Tons"`
	CitizenSatisfaction string   `json:"citizenSatisfaction"`
	Budget              int64    `json:"budget"`
	TopTags             []string `json:"topTags"`
}
