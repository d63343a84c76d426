package plant

import "time"

// Category is the plant class. It selects which deadband point table applies.
type Category string

const (
	CategoryGrid          Category = "grid"
	CategoryEnergyStorage Category = "energyStorage"
)

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryGrid, CategoryEnergyStorage:
		return true
	}
	return false
}

// DefaultPort is the DNP3 TCP port assumed when a gateway has none recorded.
const DefaultPort = 20000

// Gateway is a physical DNP3 device hosting one or more plants.
type Gateway struct {
	ID        string `json:"id"`
	IPAddress string `json:"ip_address"`
	Port      int    `json:"port"`

	// SiteToken scopes access to the gateway. It is never serialised.
	SiteToken string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// Plant is a DNP3 outstation behind a gateway.
type Plant struct {
	PlantNo     string    `json:"plant_no"`
	GatewayID   string    `json:"gateway_id"`
	DNP3Address int       `json:"dnp3_address"`
	Name        string    `json:"plant_name"`
	Category    Category  `json:"plant_category"`
	CreatedAt   time.Time `json:"created_at"`
}

// MeterEntry is one plant as listed by the meter directory of a gateway.
type MeterEntry struct {
	PlantName   string `json:"plantName"`
	PlantNo     string `json:"plantNo"`
	DNP3Address int    `json:"dnp3Address"`
}

// RosterEntry is one outstation as the master daemon expects it at startup.
type RosterEntry struct {
	PlantNo       string        `json:"plantNo"`
	PlantName     string        `json:"plantName"`
	PlantCategory Category      `json:"plantCategory"`
	DNP3Address   int           `json:"dnp3Address"`
	Gateway       RosterGateway `json:"gateway"`
}

// RosterGateway is the connection part of a RosterEntry.
type RosterGateway struct {
	IPAddress string `json:"ipAddress"`
	Port      int    `json:"port"`
}
