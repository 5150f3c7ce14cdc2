package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// AdminHandlers 运维接口：指标与运行期调参
type AdminHandlers struct {
	room *Room
}

func NewAdminHandlers(room *Room) *AdminHandlers {
	return &AdminHandlers{room: room}
}

type tuning struct {
	AFKTimeoutMs   *int64   `json:"afkTimeoutMs,omitempty"`
	RespawnDelayMs *int64   `json:"respawnDelayMs,omitempty"`
	SafetyRadius   *float64 `json:"safetyRadius,omitempty"`
}

// HandleAdminConfig 提供房间配置的读取与更新（热更新基本规则）
// GET /admin/config  返回当前配置
// POST /admin/config 以 JSON 载荷更新部分字段
func (a *AdminHandlers) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var cur tuning
		err := a.room.Do(func(room *Room) {
			afk := room.AFKTimeout().Milliseconds()
			respawn := room.world.RespawnDelay().Milliseconds()
			radius := room.world.SafetyZone().Radius
			cur = tuning{AFKTimeoutMs: &afk, RespawnDelayMs: &respawn, SafetyRadius: &radius}
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, cur)
	case http.MethodPost:
		var body tuning
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if (body.AFKTimeoutMs != nil && *body.AFKTimeoutMs <= 0) ||
			(body.RespawnDelayMs != nil && *body.RespawnDelayMs < 0) ||
			(body.SafetyRadius != nil && *body.SafetyRadius < 0) {
			http.Error(w, "invalid value", http.StatusBadRequest)
			return
		}
		err := a.room.Do(func(room *Room) {
			if body.AFKTimeoutMs != nil {
				room.SetAFKTimeout(time.Duration(*body.AFKTimeoutMs) * time.Millisecond)
			}
			if body.RespawnDelayMs != nil {
				room.world.SetRespawnDelay(time.Duration(*body.RespawnDelayMs) * time.Millisecond)
			}
			if body.SafetyRadius != nil {
				room.world.SetSafetyRadius(*body.SafetyRadius)
			}
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
		Log.Infof("config updated: afkTimeoutMs=%v respawnDelayMs=%v safetyRadius=%v",
			deref(body.AFKTimeoutMs), deref(body.RespawnDelayMs), deref(body.SafetyRadius))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleMetrics 输出房间的运行指标
// GET /metrics
func (a *AdminHandlers) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"tick":    a.room.TickSeq(),
		"queue":   a.room.QueueLen(),
		"online":  a.room.Online(),
		"metrics": a.room.Metrics().Snapshot(),
	}
	writeJSON(w, payload)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func deref[T any](p *T) any {
	if p == nil {
		return "-"
	}
	return *p
}
