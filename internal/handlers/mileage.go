package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-mileage/internal/mileage"
)

// MileageHandler exposes the reconciliation engine over HTTP. The
// dashboard's trip-entry screens call it after edits that invalidate the
// derived mileage; operators call it fleet-wide as a repair action.
type MileageHandler struct {
	corrector *mileage.Corrector
}

// NewMileageHandler creates a new mileage handler
func NewMileageHandler(corrector *mileage.Corrector) *MileageHandler {
	return &MileageHandler{corrector: corrector}
}

// Reconcile triggers a correction run. POST /api/mileage/reconcile runs
// the whole fleet; POST /api/mileage/reconcile/{vehicle_id} runs one
// vehicle. The response is the run's report.
func (h *MileageHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var vehicleIDs []string
	rest := strings.TrimPrefix(r.URL.Path, "/api/mileage/reconcile")
	rest = strings.Trim(rest, "/")
	if rest != "" {
		if strings.Contains(rest, "/") {
			http.Error(w, "Invalid vehicle ID", http.StatusBadRequest)
			return
		}
		vehicleIDs = []string{rest}
	}

	report, err := h.corrector.Run(r.Context(), vehicleIDs...)
	if err != nil {
		log.WithError(err).Error("reconciliation run failed")
		http.Error(w, "Reconciliation failed", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if len(report.FailedIDs) > 0 {
		// Partial success: some trips kept their stale value
		status = http.StatusMultiStatus
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(report)
}
