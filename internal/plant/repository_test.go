package plant

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/dreams-grid/dreams-core/internal/infrastructure/database"
	_ "github.com/dreams-grid/dreams-core/migrations"
)

// setupTestDB opens an in-memory database with the production schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db.DB
}

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	repo := NewSQLiteRepository(setupTestDB(t))
	for _, g := range []*Gateway{
		{ID: "gw-1", IPAddress: "10.0.0.5", SiteToken: "token-1"},
		{ID: "gw-2", IPAddress: "10.0.0.6", Port: 20001, SiteToken: "token-2"},
	} {
		if err := repo.CreateGateway(context.Background(), g); err != nil {
			t.Fatalf("CreateGateway(%s) error = %v", g.ID, err)
		}
	}
	return repo
}

func mustCreatePlant(t *testing.T, repo *SQLiteRepository, plantNo, gatewayID string, addr int) {
	t.Helper()

	p := &Plant{PlantNo: plantNo, GatewayID: gatewayID, DNP3Address: addr, Name: "Plant " + plantNo, Category: CategoryGrid}
	if err := repo.CreatePlant(context.Background(), p); err != nil {
		t.Fatalf("CreatePlant(%s) error = %v", plantNo, err)
	}
}

func TestSQLiteRepository_CreateGateway(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	g, err := repo.FindGateway(ctx, "gw-1")
	if err != nil {
		t.Fatalf("FindGateway() error = %v", err)
	}
	if g.Port != DefaultPort {
		t.Errorf("Port = %d, want default %d", g.Port, DefaultPort)
	}
	if g.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	err = repo.CreateGateway(ctx, &Gateway{ID: "gw-1", IPAddress: "10.0.0.9", SiteToken: "x"})
	if !errors.Is(err, ErrGatewayExists) {
		t.Errorf("duplicate CreateGateway() error = %v, want ErrGatewayExists", err)
	}

	err = repo.CreateGateway(ctx, &Gateway{ID: "gw-3", IPAddress: "not-an-ip", SiteToken: "x"})
	if !errors.Is(err, ErrInvalidGateway) {
		t.Errorf("invalid IP CreateGateway() error = %v, want ErrInvalidGateway", err)
	}
}

func TestSQLiteRepository_CreatePlant(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	mustCreatePlant(t, repo, "PL1", "gw-1", 6)

	tests := []struct {
		name    string
		plant   *Plant
		wantErr error
	}{
		{
			name:    "duplicate plant number",
			plant:   &Plant{PlantNo: "PL1", GatewayID: "gw-2", DNP3Address: 4, Name: "x", Category: CategoryGrid},
			wantErr: ErrPlantExists,
		},
		{
			name:    "address taken on same gateway",
			plant:   &Plant{PlantNo: "PL2", GatewayID: "gw-1", DNP3Address: 6, Name: "x", Category: CategoryGrid},
			wantErr: ErrAddressConflict,
		},
		{
			name:    "unknown gateway",
			plant:   &Plant{PlantNo: "PL3", GatewayID: "gw-missing", DNP3Address: 4, Name: "x", Category: CategoryGrid},
			wantErr: ErrGatewayNotFound,
		},
		{
			name:  "same address on another gateway",
			plant: &Plant{PlantNo: "PL4", GatewayID: "gw-2", DNP3Address: 6, Name: "x", Category: CategoryEnergyStorage},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.CreatePlant(ctx, tt.plant)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("CreatePlant() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreatePlant() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSQLiteRepository_FindPlant(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	mustCreatePlant(t, repo, "PL1", "gw-1", 6)

	p, err := repo.FindPlant(ctx, "PL1")
	if err != nil {
		t.Fatalf("FindPlant() error = %v", err)
	}
	if p.GatewayID != "gw-1" || p.DNP3Address != 6 || p.Category != CategoryGrid {
		t.Errorf("FindPlant() = %+v", p)
	}

	if _, err := repo.FindPlant(ctx, "PL-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindPlant(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRepository_FindGatewayForToken(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		gatewayID string
		token     string
		wantErr   error
	}{
		{"matching token", "gw-1", "token-1", nil},
		{"token of another gateway", "gw-1", "token-2", ErrNotFound},
		{"empty token", "gw-1", "", ErrNotFound},
		{"unknown gateway", "gw-missing", "token-1", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := repo.FindGatewayForToken(ctx, tt.gatewayID, tt.token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if g.IPAddress != "10.0.0.5" {
				t.Errorf("IPAddress = %q, want 10.0.0.5", g.IPAddress)
			}
		})
	}
}

func TestSQLiteRepository_ListByGatewayAndMaxAddress(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	if _, found, err := repo.MaxAddress(ctx, "gw-1"); err != nil || found {
		t.Fatalf("MaxAddress(empty) = found %v, err %v; want not found", found, err)
	}

	mustCreatePlant(t, repo, "PL7", "gw-1", 7)
	mustCreatePlant(t, repo, "PL4", "gw-1", 4)
	mustCreatePlant(t, repo, "PL5", "gw-1", 5)
	mustCreatePlant(t, repo, "PL9", "gw-2", 9)

	plants, err := repo.ListByGateway(ctx, "gw-1")
	if err != nil {
		t.Fatalf("ListByGateway() error = %v", err)
	}
	var got []int
	for _, p := range plants {
		got = append(got, p.DNP3Address)
	}
	if len(got) != 3 || got[0] != 4 || got[1] != 5 || got[2] != 7 {
		t.Errorf("addresses = %v, want [4 5 7]", got)
	}

	highest, found, err := repo.MaxAddress(ctx, "gw-1")
	if err != nil || !found || highest != 7 {
		t.Errorf("MaxAddress() = %d, %v, %v; want 7, true, nil", highest, found, err)
	}
}

func TestSQLiteRepository_ListRoster(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	roster, err := repo.ListRoster(ctx)
	if err != nil {
		t.Fatalf("ListRoster(empty) error = %v", err)
	}
	if roster == nil || len(roster) != 0 {
		t.Fatalf("ListRoster(empty) = %v, want empty non-nil slice", roster)
	}

	mustCreatePlant(t, repo, "PL9", "gw-2", 9)
	mustCreatePlant(t, repo, "PL6", "gw-1", 6)
	mustCreatePlant(t, repo, "PL4", "gw-1", 4)

	roster, err = repo.ListRoster(ctx)
	if err != nil {
		t.Fatalf("ListRoster() error = %v", err)
	}
	want := []RosterEntry{
		{PlantNo: "PL4", PlantName: "Plant PL4", PlantCategory: CategoryGrid, DNP3Address: 4, Gateway: RosterGateway{IPAddress: "10.0.0.5", Port: DefaultPort}},
		{PlantNo: "PL6", PlantName: "Plant PL6", PlantCategory: CategoryGrid, DNP3Address: 6, Gateway: RosterGateway{IPAddress: "10.0.0.5", Port: DefaultPort}},
		{PlantNo: "PL9", PlantName: "Plant PL9", PlantCategory: CategoryGrid, DNP3Address: 9, Gateway: RosterGateway{IPAddress: "10.0.0.6", Port: 20001}},
	}
	if len(roster) != len(want) {
		t.Fatalf("len(roster) = %d, want %d", len(roster), len(want))
	}
	for i := range want {
		if roster[i] != want[i] {
			t.Errorf("roster[%d] = %+v, want %+v", i, roster[i], want[i])
		}
	}
}
