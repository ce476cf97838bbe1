package api

import (
	"net/http"
	"testing"

	"github.com/starfield/server/internal/auth"
	"github.com/starfield/server/internal/starmap"
	"github.com/starfield/server/internal/testutil"
)

func TestAdminRoutes_RequireToken(t *testing.T) {
	ts := newTestServer(t, newTestConfig(t))

	rr := ts.http.MakeRequest(http.MethodDelete, "/api/admin/universe/cache", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	rr = ts.http.WithToken("not-a-token").MakeRequest(http.MethodDelete, "/api/admin/universe/cache", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status with bad token = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAdminSetSeed(t *testing.T) {
	ts := newTestServer(t, newTestConfig(t))
	ts.manager.UpdateVisible(starmap.Vec3{})
	before := ts.manager.Info()

	rr := ts.http.WithToken(ts.token).MakeRequest(http.MethodPut, "/api/admin/universe/seed", SeedRequest{Seed: "andromeda"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (%s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	var resp ReseedResponse
	testutil.DecodeJSON(t, rr, &resp)

	if resp.Seed != "andromeda" || !resp.IsCustom || !resp.Reseeded {
		t.Errorf("response = %+v", resp)
	}
	if resp.Epoch != before.Epoch+1 {
		t.Errorf("epoch = %d, want %d", resp.Epoch, before.Epoch+1)
	}
	if resp.CacheSize != 0 || len(ts.manager.Primary().VisibleChunks()) != 0 {
		t.Error("reseed must clear the cache and visible set")
	}

	rr = ts.http.WithToken(ts.token).MakeRequest(http.MethodPut, "/api/admin/universe/seed", SeedRequest{})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty seed status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAdminSetCustomSeed(t *testing.T) {
	ts := newTestServer(t, newTestConfig(t))
	admin := ts.http.WithToken(ts.token)

	tests := []struct {
		name         string
		req          CustomSeedRequest
		wantStatus   int
		wantReseeded bool
		wantSeed     string
	}{
		{"enable", CustomSeedRequest{Enabled: true, Seed: "custom-1"}, http.StatusOK, true, "custom-1"},
		{"enable same seed", CustomSeedRequest{Enabled: true, Seed: "custom-1"}, http.StatusOK, false, "custom-1"},
		{"disable", CustomSeedRequest{Enabled: false, Seed: "custom-1"}, http.StatusOK, true, ts.cfg.Universe.GlobalSeed},
		{"enable without seed", CustomSeedRequest{Enabled: true}, http.StatusBadRequest, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := admin.MakeRequest(http.MethodPut, "/api/admin/universe/custom-seed", tt.req)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp ReseedResponse
			testutil.DecodeJSON(t, rr, &resp)
			if resp.Reseeded != tt.wantReseeded || resp.Seed != tt.wantSeed {
				t.Errorf("response = %+v, want reseeded=%v seed=%q", resp, tt.wantReseeded, tt.wantSeed)
			}
		})
	}
}

func TestAdminResetCache(t *testing.T) {
	ts := newTestServer(t, newTestConfig(t))
	ts.manager.UpdateVisible(starmap.Vec3{})
	seed := ts.manager.ActiveSeed()

	rr := ts.http.WithToken(ts.token).MakeRequest(http.MethodDelete, "/api/admin/universe/cache", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp ReseedResponse
	testutil.DecodeJSON(t, rr, &resp)
	if resp.CacheSize != 0 || resp.Seed != seed {
		t.Errorf("response = %+v", resp)
	}
}

func TestAdminUpdateSettings(t *testing.T) {
	ts := newTestServer(t, newTestConfig(t))
	admin := ts.http.WithToken(ts.token)
	epoch := ts.manager.Epoch()

	rr := admin.MakeRequest(http.MethodPut, "/api/admin/universe/settings", map[string]any{
		"view_radius": 2,
		"max_visible": 50,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (%s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	settings := ts.manager.Settings()
	if settings.ViewRadius != 2 || settings.MaxVisible != 50 {
		t.Errorf("settings = %+v", settings)
	}
	if ts.manager.Epoch() != epoch {
		t.Error("radius and cap changes must not reset the universe")
	}

	gen := settings.Generation
	gen.MaxStars = 12
	rr = admin.MakeRequest(http.MethodPut, "/api/admin/universe/settings", map[string]any{"generation": gen})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (%s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	if ts.manager.Epoch() != epoch+1 {
		t.Errorf("epoch = %d, want %d after a generation change", ts.manager.Epoch(), epoch+1)
	}

	for _, body := range []map[string]any{
		{"max_visible": 0},
		{"view_radius": -1},
		{"generation": map[string]any{"chunk_size": 0, "min_stars": 1, "max_stars": 2, "min_size": 1, "max_size": 2}},
		{"view_radius": 17},
		{"generation": map[string]any{"chunk_size": 32, "min_stars": 0, "max_stars": int64(1<<63 - 1), "min_size": 1, "max_size": 2}},
		{"generation": map[string]any{"chunk_size": 32, "min_stars": 0, "max_stars": 1000000000, "min_size": 1, "max_size": 2}},
	} {
		rr = admin.MakeRequest(http.MethodPut, "/api/admin/universe/settings", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %v status = %d, want %d", body, rr.Code, http.StatusBadRequest)
		}
	}
	if got := ts.manager.Settings().Generation.MaxStars; got != 12 {
		t.Errorf("rejected settings leaked into the engine: max stars = %d", got)
	}
}

func TestAuthTokenRoute(t *testing.T) {
	ts := newTestServer(t, newTestConfig(t))

	rr := ts.http.MakeRequest(http.MethodPost, "/api/auth/token", auth.TokenRequest{Password: "wrong-password-9"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	rr = ts.http.MakeRequest(http.MethodPost, "/api/auth/token", auth.TokenRequest{Password: testOperatorPassword})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (%s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	var tok auth.TokenResponse
	testutil.DecodeJSON(t, rr, &tok)

	rr = ts.http.WithToken(tok.AccessToken).MakeRequest(http.MethodDelete, "/api/admin/universe/cache", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("issued token rejected: status %d", rr.Code)
	}
}
