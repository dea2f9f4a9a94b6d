package testhelpers

import (
	"fmt"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hgovi/Basketball-RAG/pkg/database"
)

// StatsTable is the table the seeded fixture creates.
const StatsTable = "ucla_player_stats"

// Player names present in the fixture.
const (
	PlayerBetts = "Betts, Lauren"
	PlayerRice  = "Rice, Kiki"
	PlayerJones = "Jones, Londynn"
)

// GameLine is one row of the box-score fixture.
type GameLine struct {
	Date     string
	Opponent string
	Name     string
	No       string
	Min      float64
	FGM, FGA int
	TPM, TPA int
	FTM, FTA int
	OReb     int
	DReb     int
	Ast      int
	TO       int
	Blk      int
	Stl      int
	Pts      int
}

// Games are the opponents and dates in the fixture, in date order.
var Games = []struct{ Date, Opponent string }{
	{"2024-11-05", "Cal State Fullerton"},
	{"2024-11-10", "Louisville"},
	{"2024-12-01", "USC"},
}

// SeedLines is the box-score data loaded by NewStatsDB. Betts averages 22
// points, Rice 15 and Jones 32/3. Each game also carries a Totals row and
// a TM (team) row.
var SeedLines = []GameLine{
	{"2024-11-05", "Cal State Fullerton", PlayerBetts, "51", 28, 8, 12, 0, 0, 4, 5, 3, 7, 2, 1, 3, 1, 20},
	{"2024-11-05", "Cal State Fullerton", PlayerRice, "1", 32, 6, 13, 2, 5, 1, 2, 1, 3, 5, 2, 0, 2, 15},
	{"2024-11-05", "Cal State Fullerton", PlayerJones, "13", 25, 4, 10, 2, 6, 0, 0, 0, 3, 3, 1, 0, 1, 10},
	{"2024-11-05", "Cal State Fullerton", "TM", "", 0, 0, 0, 0, 0, 0, 0, 1, 1, 0, 0, 0, 0, 0},
	{"2024-11-05", "Cal State Fullerton", "Totals", "", 85, 18, 35, 2, 11, 5, 7, 5, 14, 10, 4, 3, 4, 45},

	{"2024-11-10", "Louisville", PlayerBetts, "51", 30, 10, 15, 0, 0, 4, 6, 4, 8, 3, 2, 4, 0, 24},
	{"2024-11-10", "Louisville", PlayerRice, "1", 33, 7, 14, 3, 6, 1, 1, 1, 4, 6, 3, 0, 1, 18},
	{"2024-11-10", "Louisville", PlayerJones, "13", 22, 3, 9, 2, 5, 0, 0, 0, 2, 4, 1, 0, 2, 8},
	{"2024-11-10", "Louisville", "TM", "", 0, 0, 0, 0, 0, 0, 0, 1, 1, 0, 0, 0, 0, 0},
	{"2024-11-10", "Louisville", "Totals", "", 85, 20, 38, 5, 11, 5, 7, 6, 15, 13, 6, 4, 3, 50},

	{"2024-12-01", "USC", PlayerBetts, "51", 29, 9, 14, 0, 0, 4, 4, 3, 8, 1, 3, 2, 2, 22},
	{"2024-12-01", "USC", PlayerRice, "1", 31, 5, 12, 1, 4, 1, 2, 0, 3, 4, 2, 0, 1, 12},
	{"2024-12-01", "USC", PlayerJones, "13", 27, 5, 11, 4, 8, 0, 0, 1, 3, 5, 2, 0, 1, 14},
	{"2024-12-01", "USC", "TM", "", 0, 0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0},
	{"2024-12-01", "USC", "Totals", "", 87, 19, 37, 5, 12, 5, 6, 4, 16, 10, 7, 2, 4, 48},
}

const insertLine = `INSERT INTO ucla_player_stats
	(game_date, Opponent, Name, "No", Min, FG, FGM, FGA, "3PT", "3PTM", "3PTA", FT, FTM, FTA, "OR-DR", Reb, Ast, "TO", Blk, Stl, Pts)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// NewStatsDB creates a migrated and seeded SQLite file under t.TempDir and
// returns its path.
func NewStatsDB(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "stats.db")
	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	for _, l := range SeedLines {
		_, err := db.Exec(insertLine,
			l.Date, l.Opponent, l.Name, l.No, l.Min,
			madeAttempted(l.FGM, l.FGA), l.FGM, l.FGA,
			madeAttempted(l.TPM, l.TPA), l.TPM, l.TPA,
			madeAttempted(l.FTM, l.FTA), l.FTM, l.FTA,
			fmt.Sprintf("%d-%d", l.OReb, l.DReb), l.OReb+l.DReb,
			l.Ast, l.TO, l.Blk, l.Stl, l.Pts)
		if err != nil {
			t.Fatalf("failed to seed %s vs %s: %v", l.Name, l.Opponent, err)
		}
	}
	return path
}

// NewEmptyDB creates a migrated SQLite file with no rows.
func NewEmptyDB(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return path
}

func madeAttempted(made, attempted int) string {
	return fmt.Sprintf("%d-%d", made, attempted)
}
