package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// handleUpdateSchedule persists a new nightly import time and re-arms
// the running cron entry. The client sends wall-clock "HH:MM" in the
// scheduler's configured timezone.
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Time string `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Time == "" {
		writeError(w, http.StatusBadRequest, "Укажите время в формате ЧЧ:ММ.")
		return
	}
	spec, err := cronSpecFromClock(req.Time)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Укажите время в формате ЧЧ:ММ.")
		return
	}

	if err := s.store.SaveScheduleSpec(r.Context(), spec); err != nil {
		s.logger.Error("Failed to persist schedule.", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Не удалось сохранить расписание.")
		return
	}
	if err := s.sched.Update(spec); err != nil {
		s.logger.Error("Failed to re-arm schedule.", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Не удалось обновить расписание.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Расписание успешно обновлено",
		"time":    req.Time,
	})
}

// cronSpecFromClock turns "21:30" into the five-field spec "30 21 * * *".
func cronSpecFromClock(clock string) (string, error) {
	hh, mm, ok := strings.Cut(clock, ":")
	if !ok {
		return "", fmt.Errorf("malformed clock time %q", clock)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("bad hour in clock time %q", clock)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("bad minute in clock time %q", clock)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
