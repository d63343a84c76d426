package plant

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Registry is the read side used by the control operations.
type Registry interface {
	// FindPlant retrieves a plant by its number.
	// Returns ErrNotFound if the plant does not exist.
	FindPlant(ctx context.Context, plantNo string) (*Plant, error)

	// FindGateway retrieves the gateway a plant sits behind.
	// Returns ErrGatewayNotFound if it does not exist.
	FindGateway(ctx context.Context, gatewayID string) (*Gateway, error)

	// FindGatewayForToken retrieves a gateway only if siteToken matches.
	// Returns ErrNotFound if the gateway does not exist or the token differs.
	FindGatewayForToken(ctx context.Context, gatewayID, siteToken string) (*Gateway, error)

	// ListByGateway returns the plants on a gateway ordered by DNP3 address.
	ListByGateway(ctx context.Context, gatewayID string) ([]Plant, error)
}

// AddressStore reports the highest DNP3 address in use on a gateway.
type AddressStore interface {
	// MaxAddress returns the highest address and true, or 0 and false when
	// the gateway has no plants.
	MaxAddress(ctx context.Context, gatewayID string) (int, bool, error)
}

// PlantCreator persists new plants.
type PlantCreator interface {
	// CreatePlant inserts a plant. Returns ErrAddressConflict if the
	// address is taken on the gateway, ErrPlantExists if the number is.
	CreatePlant(ctx context.Context, p *Plant) error
}

// SQLiteRepository implements Registry, AddressStore and PlantCreator
// using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// FindPlant retrieves a plant by its number.
func (r *SQLiteRepository) FindPlant(ctx context.Context, plantNo string) (*Plant, error) {
	query := `
		SELECT plant_no, gateway_id, dnp3_address, plant_name, plant_category, created_at
		FROM plants
		WHERE plant_no = ?`

	p, err := scanPlant(r.db.QueryRowContext(ctx, query, plantNo))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying plant %s: %w", plantNo, err)
	}
	return p, nil
}

// FindGateway retrieves a gateway by ID without a token check.
func (r *SQLiteRepository) FindGateway(ctx context.Context, gatewayID string) (*Gateway, error) {
	query := `
		SELECT id, ip_address, port, site_token, created_at
		FROM gateways
		WHERE id = ?`

	var g Gateway
	var createdAt string
	err := r.db.QueryRowContext(ctx, query, gatewayID).Scan(
		&g.ID, &g.IPAddress, &g.Port, &g.SiteToken, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGatewayNotFound
		}
		return nil, fmt.Errorf("querying gateway %s: %w", gatewayID, err)
	}
	g.CreatedAt = parseTimestamp(createdAt)
	return &g, nil
}

// FindGatewayForToken retrieves a gateway only if siteToken matches.
func (r *SQLiteRepository) FindGatewayForToken(ctx context.Context, gatewayID, siteToken string) (*Gateway, error) {
	g, err := r.FindGateway(ctx, gatewayID)
	if err != nil {
		if errors.Is(err, ErrGatewayNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if siteToken == "" || subtle.ConstantTimeCompare([]byte(g.SiteToken), []byte(siteToken)) != 1 {
		return nil, ErrNotFound
	}
	return g, nil
}

// ListByGateway returns the plants on a gateway ordered by DNP3 address.
func (r *SQLiteRepository) ListByGateway(ctx context.Context, gatewayID string) ([]Plant, error) {
	query := `
		SELECT plant_no, gateway_id, dnp3_address, plant_name, plant_category, created_at
		FROM plants
		WHERE gateway_id = ?
		ORDER BY dnp3_address`

	rows, err := r.db.QueryContext(ctx, query, gatewayID)
	if err != nil {
		return nil, fmt.Errorf("querying plants for gateway %s: %w", gatewayID, err)
	}
	defer rows.Close()

	var plants []Plant
	for rows.Next() {
		p, err := scanPlant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning plant: %w", err)
		}
		plants = append(plants, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plants: %w", err)
	}
	return plants, nil
}

// ListRoster returns every plant joined with its gateway, ordered by gateway
// then address. The master daemon loads its outstation list from this.
func (r *SQLiteRepository) ListRoster(ctx context.Context) ([]RosterEntry, error) {
	query := `
		SELECT p.plant_no, p.plant_name, p.plant_category, p.dnp3_address, g.ip_address, g.port
		FROM plants p
		JOIN gateways g ON g.id = p.gateway_id
		ORDER BY g.id, p.dnp3_address`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying roster: %w", err)
	}
	defer rows.Close()

	roster := []RosterEntry{}
	for rows.Next() {
		var e RosterEntry
		var category string
		if err := rows.Scan(&e.PlantNo, &e.PlantName, &category, &e.DNP3Address,
			&e.Gateway.IPAddress, &e.Gateway.Port); err != nil {
			return nil, fmt.Errorf("scanning roster entry: %w", err)
		}
		e.PlantCategory = Category(category)
		roster = append(roster, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roster: %w", err)
	}
	return roster, nil
}

// MaxAddress returns the highest DNP3 address in use on a gateway.
func (r *SQLiteRepository) MaxAddress(ctx context.Context, gatewayID string) (int, bool, error) {
	var maxAddr sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		"SELECT MAX(dnp3_address) FROM plants WHERE gateway_id = ?", gatewayID,
	).Scan(&maxAddr)
	if err != nil {
		return 0, false, fmt.Errorf("querying max address for gateway %s: %w", gatewayID, err)
	}
	if !maxAddr.Valid {
		return 0, false, nil
	}
	return int(maxAddr.Int64), true, nil
}

// CreatePlant inserts a plant.
func (r *SQLiteRepository) CreatePlant(ctx context.Context, p *Plant) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO plants (plant_no, gateway_id, dnp3_address, plant_name, plant_category, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.PlantNo, p.GatewayID, p.DNP3Address, p.Name, string(p.Category),
		p.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return fmt.Errorf("%w: %s", ErrGatewayNotFound, p.GatewayID)
		case isUniqueViolation(err) && strings.Contains(err.Error(), "dnp3_address"):
			return fmt.Errorf("%w: address %d on %s", ErrAddressConflict, p.DNP3Address, p.GatewayID)
		case isUniqueViolation(err):
			return fmt.Errorf("%w: %s", ErrPlantExists, p.PlantNo)
		}
		return fmt.Errorf("inserting plant: %w", err)
	}
	return nil
}

// CreateGateway inserts a gateway.
func (r *SQLiteRepository) CreateGateway(ctx context.Context, g *Gateway) error {
	if err := ValidateGateway(g); err != nil {
		return err
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO gateways (id, ip_address, port, site_token, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		g.ID, g.IPAddress, g.Port, g.SiteToken, g.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrGatewayExists, g.ID)
		}
		return fmt.Errorf("inserting gateway: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlant(row rowScanner) (*Plant, error) {
	var p Plant
	var category, createdAt string
	if err := row.Scan(&p.PlantNo, &p.GatewayID, &p.DNP3Address, &p.Name, &category, &createdAt); err != nil {
		return nil, err
	}
	p.Category = Category(category)
	p.CreatedAt = parseTimestamp(createdAt)
	return &p, nil
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s) //nolint:errcheck // written by us in RFC3339
	return t
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
