package testutil

import (
	"math"
	"strings"
	"testing"
)

func TestRandomString(t *testing.T) {
	str := RandomString(10)
	if len(str) != 10 {
		t.Errorf("Expected string length 10, got %d", len(str))
	}

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		str2 := RandomString(10)
		if len(str2) != 10 {
			t.Errorf("Expected string length 10, got %d", len(str2))
		}
		if seen[str2] {
			t.Logf("Warning: Duplicate string generated (this is rare but possible)")
		}
		seen[str2] = true
	}
}

func TestRandomSessionName(t *testing.T) {
	name := RandomSessionName()
	if !strings.HasPrefix(name, "session_") {
		t.Errorf("Expected name to start with 'session_', got %s", name)
	}
	if !strings.HasPrefix(RandomSeed(), "seed-") {
		t.Error("Expected seed to start with 'seed-'")
	}
}

func TestSeededFixturesRepeat(t *testing.T) {
	a := NewSeededFixtures(42)
	b := NewSeededFixtures(42)

	if a.Pose(100) != b.Pose(100) {
		t.Error("Seeded fixtures should produce identical poses")
	}
	if a.Star() != b.Star() {
		t.Error("Seeded fixtures should produce identical stars")
	}
}

func TestPoseWithinSpread(t *testing.T) {
	f := NewTestFixtures()
	for i := 0; i < 100; i++ {
		p := f.Pose(50)
		if math.Abs(p.Position.X) > 50 || math.Abs(p.Position.Y) > 50 || math.Abs(p.Position.Z) > 50 {
			t.Fatalf("Pose() = %+v outside spread", p)
		}
	}
}

func TestDatabaseURL(t *testing.T) {
	cfg := TestDBConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "starfield_test", SSLMode: "disable"}
	want := "postgres://u:p@db:5433/starfield_test?sslmode=disable"
	if got := cfg.DatabaseURL(); got != want {
		t.Errorf("DatabaseURL() = %v, want %v", got, want)
	}
}
