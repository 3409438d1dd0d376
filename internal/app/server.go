package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"soltrader/internal/audit"
)

// startAdminServer 暴露指标、持仓与审计事件的只读接口。
func (a *App) startAdminServer(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.Handle("/metrics", a.metrics.Handler())

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, a.engine.MetricsSnapshot(), a.logger)
	})

	mux.HandleFunc("/positions", func(w http.ResponseWriter, r *http.Request) {
		positions, err := a.engine.ListPositions(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if status := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))); status != "" {
			filtered := positions[:0]
			for _, p := range positions {
				if string(p.Status) == status {
					filtered = append(filtered, p)
				}
			}
			positions = filtered
		}
		writeJSON(w, positions, a.logger)
	})

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 200
		if qs := q.Get("limit"); qs != "" {
			if v, err := strconv.Atoi(qs); err == nil && v > 0 {
				if v > 500 {
					v = 500
				}
				limit = v
			}
		}

		eventType := audit.EventType(strings.ToLower(strings.TrimSpace(q.Get("type"))))

		events, err := a.audit.ListEvents(r.Context(), eventType, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, events, a.logger)
	})

	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			a.logger.Warn("关闭管理服务失败", zap.Error(err))
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("管理服务异常", zap.Error(err))
		}
	}()

	a.logger.Info("管理接口已启动", zap.String("addr", addr))
	return nil
}

func writeJSON(w http.ResponseWriter, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("写入管理响应失败", zap.Error(err))
	}
}
