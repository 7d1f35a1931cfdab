package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"possync/internal/config"
	"possync/internal/database"
	"possync/internal/domain"
	"possync/internal/events"
	"possync/internal/metrics"
	"possync/internal/models"
)

const maxErrorBodyBytes = 64 << 10

// Engine drains the outbox against the booking service. One instance is
// constructed at process start; the syncing flag is a process-local
// single-flight guard, not a distributed lock — after a crash mid-push the
// same mutation is retried from scratch.
type Engine struct {
	db     *database.DB
	creds  domain.CredentialSource
	states domain.StateRepository
	bus    domain.EventPublisher
	cfg    config.SyncConfig
	client *http.Client
	logger *zerolog.Logger

	syncing atomic.Bool
	roomID  atomic.Value // string, discovery cache for this process
}

func NewEngine(db *database.DB, creds domain.CredentialSource, states domain.StateRepository, bus domain.EventPublisher, cfg config.SyncConfig, logger *zerolog.Logger) *Engine {
	return &Engine{
		db:     db,
		creds:  creds,
		states: states,
		bus:    bus,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
		logger: logger,
	}
}

// IsSyncing reports whether a push cycle is active; read by UI indicators.
func (e *Engine) IsSyncing() bool {
	return e.syncing.Load()
}

// ProcessSyncOnce pushes at most the single oldest mutation. A concurrent
// cycle makes this a no-op; an empty queue performs no network call.
func (e *Engine) ProcessSyncOnce(ctx context.Context, apiBase string) {
	if !e.syncing.CompareAndSwap(false, true) {
		return
	}
	defer e.syncing.Store(false)

	item, err := e.db.PeekOldest(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to peek outbox")
		return
	}
	if item == nil {
		return
	}

	e.push(ctx, apiBase, item)
}

// ProcessSyncCycle drains the queue until empty or the first transient
// failure. Stopping on failure is deliberate: retrying later must not
// reorder a failed mutation behind untried ones.
func (e *Engine) ProcessSyncCycle(ctx context.Context, apiBase string) CycleResult {
	var res CycleResult
	if !e.syncing.CompareAndSwap(false, true) {
		return res
	}
	defer e.syncing.Store(false)

	// Room status changes first: they collapse, so draining them up front
	// keeps the booking pass strictly FIFO.
	e.processRoomUpdates(ctx, apiBase, &res)

	for !res.AuthExpired {
		item, err := e.db.PeekOldest(ctx)
		if err != nil {
			e.logger.Error().Err(err).Msg("Failed to peek outbox")
			break
		}
		if item == nil {
			break
		}
		if item.Type == models.MutationRoomUpdate {
			// Should have been collapsed above; drop rather than wedge the queue.
			_ = e.db.Delete(ctx, item.ID)
			continue
		}

		outcome, perr := e.push(ctx, apiBase, item)
		switch outcome {
		case OutcomeSuccess, OutcomeDropped:
			res.Pushed++
			if perr != nil {
				res.LastError = perr
			}
			continue
		case OutcomeAuthExpired:
			res.Failures++
			res.AuthExpired = true
			res.LastError = perr
		case OutcomeRetry:
			res.Failures++
			res.LastError = perr
		}
		break
	}

	e.finishCycle(ctx, &res)
	return res
}

func (e *Engine) finishCycle(ctx context.Context, res *CycleResult) {
	pending, err := e.db.HasPending(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to probe outbox")
	}
	if pending {
		res.Remaining = 1
	}

	if size, err := e.db.QueueSize(ctx); err == nil {
		metrics.SetOutboxSize(size)
	}

	now := time.Now()
	if res.Failures == 0 {
		if err := e.db.SetMeta(ctx, models.MetaKeyLastSyncTS, now.UTC().Format(time.RFC3339)); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to record last sync timestamp")
		}
	}

	status := &models.SyncStatus{Syncing: false, QueueSize: res.Remaining, LastSyncAt: now}
	if res.LastError != nil {
		status.LastError = res.LastError.Error()
	}
	if err := e.states.SetSyncStatus(ctx, status); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to publish sync status")
	}

	if res.AuthExpired {
		_ = e.bus.PublishJSON(events.EventSyncAuthExpired, events.SyncEventPayload{Code: CodeAuthExpired, Status: 401})
	}
	_ = e.bus.PublishJSON(events.EventSyncCycleComplete, events.SyncEventPayload{Pushed: res.Pushed, Failures: res.Failures})
}

// push dispatches one mutation by type.
func (e *Engine) push(ctx context.Context, apiBase string, item *models.OutboxMutation) (Outcome, *PushError) {
	switch item.Type {
	case models.MutationBookingCreate:
		return e.pushBookingCreate(ctx, apiBase, item)
	case models.MutationRoomUpdate:
		return e.pushRoomUpdate(ctx, apiBase, item)
	default:
		// Unknown type cannot ever succeed; drop it so the queue drains.
		e.logger.Error().Str("outbox_id", item.ID).Str("type", item.Type).Msg("Dropping mutation of unknown type")
		_ = e.db.Delete(ctx, item.ID)
		return OutcomeDropped, &PushError{Code: CodeMalformedPayload, Message: "unknown mutation type " + item.Type, OutboxID: item.ID}
	}
}

func (e *Engine) pushBookingCreate(ctx context.Context, apiBase string, item *models.OutboxMutation) (Outcome, *PushError) {
	payload, err := item.DecodeBookingCreate()
	if err != nil {
		e.logger.Error().Err(err).Str("outbox_id", item.ID).Msg("Dropping malformed booking mutation")
		_ = e.db.Delete(ctx, item.ID)
		return OutcomeDropped, &PushError{Code: CodeMalformedPayload, Message: err.Error(), OutboxID: item.ID}
	}

	roomID := e.resolveRoomID(ctx, apiBase)
	if roomID == "" {
		// No creation call without a target room.
		perr := &PushError{Code: CodeNoRoomID, Message: "room discovery failed (no active rooms or network/auth issue)", OutboxID: item.ID}
		e.recordFailure(ctx, item, perr)
		return OutcomeRetry, perr
	}

	body := map[string]any{
		"roomId":       roomID,
		"startTimeIso": payload.StartsAt.UTC().Format(time.RFC3339),
		"players":      models.DefaultPlayers,
		"hours":        clampHours(payload.StartsAt, payload.EndsAt),
	}

	status, respBody, err := e.doJSON(ctx, http.MethodPost, apiBase+"/api/bookings", body, item.ID)
	if err != nil {
		perr := &PushError{Code: CodeNetworkError, Message: err.Error(), OutboxID: item.ID}
		e.recordFailure(ctx, item, perr)
		return OutcomeRetry, perr
	}

	if status >= 200 && status < 300 {
		serverID := extractServerBookingID(respBody)
		if err := e.db.Delete(ctx, item.ID); err != nil {
			e.logger.Error().Err(err).Str("outbox_id", item.ID).Msg("Failed to delete pushed mutation")
		}
		if err := e.db.MarkBookingClean(ctx, payload.LocalID, serverID); err != nil {
			e.logger.Error().Err(err).Str("booking_id", payload.LocalID).Msg("Failed to mark booking clean")
		}
		metrics.IncPushed(item.Type)
		e.logger.Info().Str("outbox_id", item.ID).Str("booking_id", payload.LocalID).Str("server_id", serverID).Msg("Booking pushed")
		return OutcomeSuccess, nil
	}

	errMsg := extractErrorMessage(respBody)

	if status == http.StatusUnauthorized {
		// Operator action required; do not burn an attempt.
		e.logger.Warn().Str("outbox_id", item.ID).Msg("Auth expired (401), halting sync")
		return OutcomeAuthExpired, &PushError{Code: CodeAuthExpired, Status: status, Message: "authentication expired", OutboxID: item.ID}
	}

	if status == http.StatusBadRequest && isPermanentValidation(errMsg) {
		// The slot can never be booked; keep the queue draining and stop
		// showing the booking as dirty.
		e.logger.Warn().Str("outbox_id", item.ID).Str("error", errMsg).Msg("Dropping permanently rejected booking")
		_ = e.db.Delete(ctx, item.ID)
		_ = e.db.MarkBookingClean(ctx, payload.LocalID, "")
		metrics.IncPushFailure(CodeValidationDropped)
		return OutcomeDropped, &PushError{Code: CodeValidationDropped, Status: status, Message: errMsg, OutboxID: item.ID}
	}

	perr := &PushError{Code: classifyStatus(status), Status: status, Message: errMsg, OutboxID: item.ID}
	e.recordFailure(ctx, item, perr)
	return OutcomeRetry, perr
}

func (e *Engine) pushRoomUpdate(ctx context.Context, apiBase string, item *models.OutboxMutation) (Outcome, *PushError) {
	payload, err := item.DecodeRoomUpdate()
	if err != nil || payload.RoomID == "" || payload.Status == "" {
		e.logger.Warn().Str("outbox_id", item.ID).Msg("Dropping malformed room update")
		_ = e.db.Delete(ctx, item.ID)
		return OutcomeDropped, &PushError{Code: CodeMalformedPayload, OutboxID: item.ID}
	}

	url := fmt.Sprintf("%s/api/bookings/rooms/%s", apiBase, payload.RoomID)
	status, respBody, err := e.doJSON(ctx, http.MethodPatch, url, map[string]any{"status": payload.Status}, item.ID)
	if err != nil {
		perr := &PushError{Code: CodeNetworkError, Message: err.Error(), OutboxID: item.ID}
		e.recordFailure(ctx, item, perr)
		return OutcomeRetry, perr
	}

	if status >= 200 && status < 300 {
		_ = e.db.Delete(ctx, item.ID)
		metrics.IncPushed(item.Type)
		e.logger.Info().Str("room_id", payload.RoomID).Str("status", payload.Status).Msg("Room update pushed")
		return OutcomeSuccess, nil
	}

	errMsg := extractErrorMessage(respBody)

	if status == http.StatusUnauthorized {
		return OutcomeAuthExpired, &PushError{Code: CodeAuthExpired, Status: status, Message: "authentication expired", OutboxID: item.ID}
	}

	// Validation and conflict rejections cannot succeed on retry.
	if status == http.StatusBadRequest || status == http.StatusNotFound || status == http.StatusConflict {
		e.logger.Warn().Str("outbox_id", item.ID).Int("status", status).Str("error", errMsg).Msg("Dropping rejected room update")
		_ = e.db.Delete(ctx, item.ID)
		metrics.IncPushFailure(CodeValidationDropped)
		return OutcomeDropped, &PushError{Code: CodeValidationDropped, Status: status, Message: errMsg, OutboxID: item.ID}
	}

	perr := &PushError{Code: classifyStatus(status), Status: status, Message: errMsg, OutboxID: item.ID}
	e.recordFailure(ctx, item, perr)
	return OutcomeRetry, perr
}

// processRoomUpdates collapses queued room updates to the newest per room,
// drops the superseded ones and pushes the survivors.
func (e *Engine) processRoomUpdates(ctx context.Context, apiBase string, res *CycleResult) {
	updates, err := e.db.ListByType(ctx, models.MutationRoomUpdate)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to list room updates")
		return
	}
	if len(updates) == 0 {
		return
	}

	latest := make(map[string]models.OutboxMutation)
	order := make([]string, 0, len(updates))
	for _, item := range updates {
		payload, err := item.DecodeRoomUpdate()
		if err != nil || payload.RoomID == "" {
			e.logger.Warn().Str("outbox_id", item.ID).Msg("Dropping malformed room update")
			_ = e.db.Delete(ctx, item.ID)
			continue
		}
		if _, seen := latest[payload.RoomID]; !seen {
			order = append(order, payload.RoomID)
		}
		latest[payload.RoomID] = item // ListByType is FIFO, later wins
	}

	keep := make(map[string]bool, len(latest))
	for _, item := range latest {
		keep[item.ID] = true
	}
	for _, item := range updates {
		if !keep[item.ID] {
			e.logger.Debug().Str("outbox_id", item.ID).Msg("Dropping superseded room update")
			_ = e.db.Delete(ctx, item.ID)
		}
	}

	for _, roomID := range order {
		item := latest[roomID]
		outcome, perr := e.pushRoomUpdate(ctx, apiBase, &item)
		switch outcome {
		case OutcomeSuccess, OutcomeDropped:
			res.Pushed++
			if perr != nil {
				res.LastError = perr
			}
		case OutcomeAuthExpired:
			res.Failures++
			res.AuthExpired = true
			res.LastError = perr
			return
		case OutcomeRetry:
			res.Failures++
			res.LastError = perr
			return
		}
	}
}

// doJSON issues one request with auth headers and a bounded timeout and
// returns the status plus a size-capped body.
func (e *Engine) doJSON(ctx context.Context, method, url string, body any, outboxID string) (int, []byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Stable across retries: lets a deduplicating server drop replays of a
	// push whose ack was lost.
	req.Header.Set("Idempotency-Key", outboxID)
	e.applyAuthHeaders(req)

	e.logger.Debug().Str("method", method).Str("url", url).RawJSON("body", raw).Msg("Pushing mutation")

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		respBody = nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.logger.Error().Int("status", resp.StatusCode).Str("url", url).Bytes("body", respBody).Msg("Push rejected")
	}

	return resp.StatusCode, respBody, nil
}

func (e *Engine) applyAuthHeaders(req *http.Request) {
	if token := e.creds.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if cookies := e.creds.SessionCookieHeader(); cookies != "" {
		req.Header.Set("Cookie", cookies)
	}
}

func (e *Engine) recordFailure(ctx context.Context, item *models.OutboxMutation, perr *PushError) {
	if err := e.db.IncrementAttempt(ctx, item.ID); err != nil {
		e.logger.Error().Err(err).Str("outbox_id", item.ID).Msg("Failed to increment attempt counter")
	}
	metrics.IncPushFailure(perr.Code)
	_ = e.bus.PublishJSON(events.EventSyncPushFailed, events.SyncEventPayload{
		OutboxID:     item.ID,
		Code:         perr.Code,
		Status:       perr.Status,
		Message:      perr.Message,
		AttemptCount: item.AttemptCount + 1,
	})
}

// clampHours rounds the booking span to whole hours and clamps it into the
// [1, 4] range the service accepts.
func clampHours(start, end time.Time) int {
	hours := int(math.Round(end.Sub(start).Hours()))
	if hours < models.MinBookingHours {
		return models.MinBookingHours
	}
	if hours > models.MaxBookingHours {
		return models.MaxBookingHours
	}
	return hours
}

// extractServerBookingID pulls booking.id out of a creation response, ""
// when the body has an unexpected shape.
func extractServerBookingID(body []byte) string {
	var parsed struct {
		Booking struct {
			ID flexID `json:"id"`
		} `json:"booking"`
		ID flexID `json:"id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if parsed.Booking.ID != "" {
		return string(parsed.Booking.ID)
	}
	return string(parsed.ID)
}

// extractErrorMessage tolerates both {"error":"..."} and
// {"error":{"message":"..."}} failure bodies.
func extractErrorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var withString struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &withString); err == nil && withString.Error != "" {
		return withString.Error
	}
	var withObject struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &withObject); err == nil && withObject.Error.Message != "" {
		return withObject.Error.Message
	}
	return strings.TrimSpace(string(body))
}

var permanentValidationMarkers = []string{
	"outside room operating hours",
	"cannot book a past time slot",
	"cross-day",
}

func isPermanentValidation(errMsg string) bool {
	msg := strings.ToLower(errMsg)
	if msg == "" {
		return false
	}
	for _, marker := range permanentValidationMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
