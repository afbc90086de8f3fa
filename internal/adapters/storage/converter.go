package storage

import (
	"github.com/lcalzada-xor/geoview/internal/core/domain"
)

// toFixModel converts a domain record to its database model.
func toFixModel(r domain.FixRecord) FixModel {
	return FixModel{
		SessionID:  r.SessionID,
		Outcome:    string(r.Outcome),
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		Accuracy:   r.Accuracy,
		Source:     r.Source,
		Error:      r.Error,
		AcquiredAt: r.AcquiredAt,
	}
}

// toFixRecord converts a database model back to a domain record.
func toFixRecord(m FixModel) domain.FixRecord {
	return domain.FixRecord{
		SessionID:  m.SessionID,
		Outcome:    domain.FixOutcome(m.Outcome),
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
		Accuracy:   m.Accuracy,
		Source:     m.Source,
		Error:      m.Error,
		AcquiredAt: m.AcquiredAt,
	}
}
