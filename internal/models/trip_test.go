package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestTripMarshalUnmarshal(t *testing.T) {
	kmpl := 12.5
	trip := Trip{
		VehicleID:      "veh-1",
		TripEndDate:    time.Now(),
		StartKm:        1000,
		EndKm:          1100,
		RefuelingDone:  true,
		FuelQuantity:   8,
		Refuelings:     []Refueling{{FuelQuantity: 8, ReceiptNo: "R-1"}},
		CalculatedKmpl: &kmpl,
	}
	data, err := json.Marshal(trip)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var out Trip
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out.CalculatedKmpl == nil || *out.CalculatedKmpl != 12.5 {
		t.Errorf("expected calculated_kmpl 12.5, got %v", out.CalculatedKmpl)
	}
}

func TestTripUndefinedKmplOmitted(t *testing.T) {
	trip := Trip{VehicleID: "veh-1"}
	data, err := json.Marshal(trip)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(data), "calculated_kmpl") {
		t.Errorf("undefined calculated_kmpl should be omitted, got %s", data)
	}
}

func TestTripDistance(t *testing.T) {
	trip := Trip{StartKm: 1450, EndKm: 1400}
	if got := trip.Distance(); got != -50 {
		t.Errorf("expected -50, got %v", got)
	}
}
