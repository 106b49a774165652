// Package api is an in-process stand-in for the GameThrive REST service.
// It backs the package tests and the CLI's fake-server command.
package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
)

// Player is the server-side record.
type Player struct {
	ID           string            `json:"id"`
	AppID        string            `json:"app_id"`
	Identifier   string            `json:"identifier"`
	DeviceType   int               `json:"device_type"`
	AdID         string            `json:"ad_id,omitempty"`
	GameVersion  string            `json:"game_version,omitempty"`
	Language     string            `json:"language,omitempty"`
	Timezone     int               `json:"timezone"`
	SDK          string            `json:"sdk,omitempty"`
	Tags         map[string]string `json:"tags"`
	SessionCount int               `json:"session_count"`
	AmountSpent  float64           `json:"amount_spent"`
}

// OpenEvent records a reported notification open.
type OpenEvent struct {
	NotificationID string
	PlayerID       string
	AppID          string
}

// registerRequest is the create/update body.
type registerRequest struct {
	AppID       string `json:"app_id"`
	Identifier  string `json:"identifier"`
	DeviceType  *int   `json:"device_type"`
	AdID        string `json:"ad_id"`
	GameVersion string `json:"game_version"`
	Language    string `json:"language"`
	Timezone    *int   `json:"timezone"`
	SDK         string `json:"sdk"`
	// Tags update: "" deletes the key.
	Tags map[string]string `json:"tags"`
}

type purchaseRequest struct {
	AppID  string  `json:"app_id"`
	Amount float64 `json:"amount"`
}

type openRequest struct {
	AppID    string `json:"app_id"`
	PlayerID string `json:"player_id"`
	Opened   bool   `json:"opened"`
}

// PlayerAPI holds the fake service state.
type PlayerAPI struct {
	Logger     *slog.Logger
	restAPIKey string

	mu       sync.Mutex
	players  map[string]*Player
	byAdID   map[string]string
	opens    []OpenEvent
	counts   map[string]int
	failures map[string][]int
}

// NewPlayerAPI creates an empty service. A non-empty restAPIKey is required as Basic auth.
func NewPlayerAPI(restAPIKey string, logger *slog.Logger) *PlayerAPI {
	return &PlayerAPI{
		Logger:     logger.With("component", "FakePlayerAPI"),
		restAPIKey: restAPIKey,
		players:    make(map[string]*Player),
		byAdID:     make(map[string]string),
		counts:     make(map[string]int),
		failures:   make(map[string][]int),
	}
}

// Route names used by Count and FailNext.
const (
	RouteCreatePlayer = "create_player"
	RouteUpdatePlayer = "update_player"
	RouteGetPlayer    = "get_player"
	RoutePurchase     = "on_purchase"
	RouteSession      = "on_session"
	RouteOpen         = "open"
)

// NewRouter mounts the service under /api/v1.
func NewRouter(api *PlayerAPI) http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(api.logging)
	v1.Use(api.auth)

	v1.HandleFunc("/players", api.route(RouteCreatePlayer, api.CreatePlayer)).Methods(http.MethodPost)
	v1.HandleFunc("/players/{id}", api.route(RouteUpdatePlayer, api.UpdatePlayer)).Methods(http.MethodPut)
	v1.HandleFunc("/players/{id}", api.route(RouteGetPlayer, api.GetPlayer)).Methods(http.MethodGet)
	v1.HandleFunc("/players/{id}/on_purchase", api.route(RoutePurchase, api.OnPurchase)).Methods(http.MethodPost)
	v1.HandleFunc("/players/{id}/on_session", api.route(RouteSession, api.OnSession)).Methods(http.MethodPost)
	v1.HandleFunc("/notifications/open", api.route(RouteOpen, api.Open)).Methods(http.MethodPost)
	v1.HandleFunc("/notifications/{id}/open", api.route(RouteOpen, api.Open)).Methods(http.MethodPost)

	return r
}

// --- Handlers ---

func (api *PlayerAPI) CreatePlayer(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.AppID == "" {
		writeError(w, http.StatusBadRequest, "app_id is required")
		return
	}
	if req.DeviceType == nil {
		writeError(w, http.StatusBadRequest, "device_type is required")
		return
	}

	api.mu.Lock()
	defer api.mu.Unlock()

	// Re-installs reporting the same ad id get their old player back.
	if req.AdID != "" {
		if id, ok := api.byAdID[req.AppID+"/"+req.AdID]; ok {
			p := api.players[id]
			applyRegistration(p, req)
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
			return
		}
	}

	p := &Player{ID: uuid.NewString(), AppID: req.AppID, Tags: make(map[string]string)}
	applyRegistration(p, req)
	api.players[p.ID] = p
	if req.AdID != "" {
		api.byAdID[req.AppID+"/"+req.AdID] = p.ID
	}
	api.Logger.Info("Player created", "player_id", p.ID, "app_id", p.AppID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": p.ID})
}

func (api *PlayerAPI) UpdatePlayer(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	api.mu.Lock()
	defer api.mu.Unlock()

	p, ok := api.lookup(w, r, req.AppID)
	if !ok {
		return
	}
	applyRegistration(p, req)
	for k, v := range req.Tags {
		if v == "" {
			delete(p.Tags, k)
		} else {
			p.Tags[k] = v
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (api *PlayerAPI) GetPlayer(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()

	p, ok := api.lookup(w, r, "")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, clonePlayer(p))
}

func (api *PlayerAPI) OnPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	api.mu.Lock()
	defer api.mu.Unlock()

	p, ok := api.lookup(w, r, req.AppID)
	if !ok {
		return
	}
	p.AmountSpent += req.Amount
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (api *PlayerAPI) OnSession(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()

	p, ok := api.lookup(w, r, "")
	if !ok {
		return
	}
	p.SessionCount++
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (api *PlayerAPI) Open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.PlayerID == "" || !req.Opened {
		writeError(w, http.StatusBadRequest, "player_id and opened are required")
		return
	}

	api.mu.Lock()
	defer api.mu.Unlock()

	if _, ok := api.players[req.PlayerID]; !ok {
		writeError(w, http.StatusBadRequest, "unknown player_id")
		return
	}
	api.opens = append(api.opens, OpenEvent{
		NotificationID: mux.Vars(r)["id"],
		PlayerID:       req.PlayerID,
		AppID:          req.AppID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// --- Inspection (tests, CLI) ---

// Player returns a copy of the record for id.
func (api *PlayerAPI) Player(id string) (Player, bool) {
	api.mu.Lock()
	defer api.mu.Unlock()
	p, ok := api.players[id]
	if !ok {
		return Player{}, false
	}
	return clonePlayer(p), true
}

// Opens returns the reported notification opens in arrival order.
func (api *PlayerAPI) Opens() []OpenEvent {
	api.mu.Lock()
	defer api.mu.Unlock()
	return append([]OpenEvent(nil), api.opens...)
}

// Count returns how many requests reached route (including injected failures).
func (api *PlayerAPI) Count(route string) int {
	api.mu.Lock()
	defer api.mu.Unlock()
	return api.counts[route]
}

// FailNext makes the next request to route answer with status.
func (api *PlayerAPI) FailNext(route string, status int) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.failures[route] = append(api.failures[route], status)
}

// --- Helpers ---

func (api *PlayerAPI) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.counts[name]++
		var status int
		if queued := api.failures[name]; len(queued) > 0 {
			status = queued[0]
			api.failures[name] = queued[1:]
		}
		api.mu.Unlock()

		if status != 0 {
			response.WriteJSONError(w, status, fmt.Sprintf("injected failure for %s", name))
			return
		}
		h(w, r)
	}
}

// lookup resolves {id}; callers hold api.mu. appID is checked when non-empty.
func (api *PlayerAPI) lookup(w http.ResponseWriter, r *http.Request, appID string) (*Player, bool) {
	id := mux.Vars(r)["id"]
	p, ok := api.players[id]
	if !ok {
		writeError(w, http.StatusNotFound, "No user with this id found")
		return nil, false
	}
	if appID != "" && p.AppID != appID {
		writeError(w, http.StatusBadRequest, "app_id does not match player")
		return nil, false
	}
	return p, true
}

func (api *PlayerAPI) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.restAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte(api.restAPIKey))
		if r.Header.Get("Authorization") != want {
			response.WriteJSONError(w, http.StatusUnauthorized, "invalid REST API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (api *PlayerAPI) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.Logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("sdk", r.Header.Get("X-GameThrive-SDK")),
		)
		next.ServeHTTP(w, r)
	})
}

func applyRegistration(p *Player, req registerRequest) {
	if req.Identifier != "" {
		p.Identifier = req.Identifier
	}
	if req.DeviceType != nil {
		p.DeviceType = *req.DeviceType
	}
	if req.Timezone != nil {
		p.Timezone = *req.Timezone
	}
	if req.AdID != "" {
		p.AdID = req.AdID
	}
	if req.GameVersion != "" {
		p.GameVersion = req.GameVersion
	}
	if req.Language != "" {
		p.Language = req.Language
	}
	if req.SDK != "" {
		p.SDK = req.SDK
	}
}

func clonePlayer(p *Player) Player {
	c := *p
	c.Tags = maps.Clone(p.Tags)
	if c.Tags == nil {
		c.Tags = map[string]string{}
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeError answers a rejected player operation with the service's {"errors":[...]}
// envelope. Malformed requests, auth and injected failures use response.WriteJSONError.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"errors": []string{msg}})
}
