package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"possync/internal/models"
)

const discoveryTimeout = 5 * time.Second

// flexID accepts string or numeric JSON ids; the booking service is not
// consistent about which it emits.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type roomEntry struct {
	ID     flexID `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// resolveRoomID finds the target room for booking pushes: static config
// first, then the cached discovery result, then a one-shot listing call.
// Returns "" when nothing can be resolved.
func (e *Engine) resolveRoomID(ctx context.Context, apiBase string) string {
	if e.cfg.RoomID != "" {
		return e.cfg.RoomID
	}

	if v := e.roomID.Load(); v != nil {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}

	if room, err := e.states.GetRoom(ctx); err == nil && room != nil && room.RoomID != "" {
		e.roomID.Store(room.RoomID)
		return room.RoomID
	}

	room := e.discoverRoom(ctx, apiBase)
	if room == nil {
		return ""
	}

	e.roomID.Store(room.RoomID)
	if err := e.states.SetRoom(ctx, room); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to cache discovered room")
	}
	return room.RoomID
}

// discoverRoom asks the service for its room list, preferring the first
// active room and falling back to the first entry.
func (e *Engine) discoverRoom(ctx context.Context, apiBase string) *models.DiscoveredRoom {
	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/api/bookings/rooms", nil)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Room discovery request build failed")
		return nil
	}
	e.applyAuthHeaders(req)

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Room discovery failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.logger.Warn().Int("status", resp.StatusCode).Msg("Room discovery rejected")
		return nil
	}

	var listing struct {
		Rooms []roomEntry `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		e.logger.Warn().Err(err).Msg("Room discovery decode failed")
		return nil
	}
	if len(listing.Rooms) == 0 {
		e.logger.Warn().Msg("Room discovery returned no rooms")
		return nil
	}

	chosen := listing.Rooms[0]
	for _, r := range listing.Rooms {
		if r.Active {
			chosen = r
			break
		}
	}

	e.logger.Info().Str("room_id", string(chosen.ID)).Str("room_name", chosen.Name).Msg("Discovered room")
	return &models.DiscoveredRoom{
		RoomID:       string(chosen.ID),
		RoomName:     chosen.Name,
		DiscoveredAt: time.Now(),
	}
}
