package httpapi

import (
	"net/http"

	"github.com/example/campus-fleet/internal/models"
)

// handleReceiveGPS ingests a tracker sample directly and mirrors it onto
// Kafka when a producer is wired, so the stream consumer and any other
// subscribers see the same feed.
func (s *Server) handleReceiveGPS(w http.ResponseWriter, r *http.Request) {
	var sample models.GPSSample
	if err := decodeBody(r, &sample); err != nil {
		badRequest(w, err.Error())
		return
	}
	if sample.IMEI == "" {
		badRequest(w, "imei required")
		return
	}
	if s.kafka != nil {
		if err := s.kafka.PublishGPS(sample); err != nil {
			s.logger.Warn("kafka publish failed", "imei", sample.IMEI, "error", err)
		}
	}
	vehicleID, err := s.ingestor.ReceiveGPS(r.Context(), sample)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "GPS data received",
		"vehicle_id": vehicleID.String(),
	})
}

func (s *Server) handleReceiveRFIDScan(w http.ResponseWriter, r *http.Request) {
	var scan models.RFIDScan
	if err := decodeBody(r, &scan); err != nil {
		badRequest(w, err.Error())
		return
	}
	if scan.RFIDDeviceID == "" {
		badRequest(w, "rfid_device_id required")
		return
	}
	if err := s.ingestor.ReceiveRFIDScan(r.Context(), scan); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Scan received"})
}
