package plant

import (
	"fmt"
	"net"
)

const (
	maxPlantNoLength = 64
	maxNameLength    = 200

	// MaxDNP3Address is the highest usable outstation address; 0xFFF0 and up
	// are reserved for broadcast and self-address.
	MaxDNP3Address = 0xFFEF
)

// ValidatePlant checks a plant before it is stored. DNP3Address 0 means
// "allocate one" and is accepted here. An empty category defaults to grid.
func ValidatePlant(p *Plant) error {
	if p == nil {
		return fmt.Errorf("%w: nil plant", ErrInvalidPlant)
	}
	if p.PlantNo == "" || len(p.PlantNo) > maxPlantNoLength {
		return fmt.Errorf("%w: plant_no must be 1-%d characters", ErrInvalidPlant, maxPlantNoLength)
	}
	if p.GatewayID == "" {
		return fmt.Errorf("%w: gateway_id is required", ErrInvalidPlant)
	}
	if p.Name == "" || len(p.Name) > maxNameLength {
		return fmt.Errorf("%w: plant_name must be 1-%d characters", ErrInvalidPlant, maxNameLength)
	}
	if p.DNP3Address < 0 || p.DNP3Address > MaxDNP3Address {
		return fmt.Errorf("%w: dnp3_address %d out of range", ErrInvalidPlant, p.DNP3Address)
	}

	if p.Category == "" {
		p.Category = CategoryGrid
	}
	if !p.Category.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, p.Category)
	}
	return nil
}

// ValidateGateway checks a gateway before it is stored. A zero port
// defaults to DefaultPort.
func ValidateGateway(g *Gateway) error {
	if g == nil {
		return fmt.Errorf("%w: nil gateway", ErrInvalidGateway)
	}
	if g.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidGateway)
	}
	if net.ParseIP(g.IPAddress) == nil {
		return fmt.Errorf("%w: ip_address %q is not an IP", ErrInvalidGateway, g.IPAddress)
	}
	if g.SiteToken == "" {
		return fmt.Errorf("%w: site token is required", ErrInvalidGateway)
	}
	if g.Port == 0 {
		g.Port = DefaultPort
	}
	if g.Port < 1 || g.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidGateway, g.Port)
	}
	return nil
}
