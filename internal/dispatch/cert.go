package dispatch

import (
	"crypto/tls"
	"math"
	"time"
)

// certExpiringDays is when a collector certificate is reported as expiring.
const certExpiringDays = 30

// CertStatus describes the leaf certificate the collector presented on the
// current TLS connection.
type CertStatus struct {
	Subject  string    `json:"subject"`
	Issuer   string    `json:"issuer"`
	NotAfter time.Time `json:"not_after"`
	DaysLeft int       `json:"days_left"`
	// Status is one of: valid | expiring | expired.
	Status string `json:"status"`
}

// certStatus inspects the peer leaf of state. It returns nil when the peer
// sent no certificate.
func certStatus(state tls.ConnectionState, now time.Time) *CertStatus {
	if len(state.PeerCertificates) == 0 {
		return nil
	}
	leaf := state.PeerCertificates[0]
	daysLeft := leaf.NotAfter.Sub(now).Hours() / 24

	cs := &CertStatus{
		Subject:  leaf.Subject.CommonName,
		Issuer:   leaf.Issuer.CommonName,
		NotAfter: leaf.NotAfter.UTC(),
		DaysLeft: int(math.Floor(daysLeft)),
	}
	switch {
	case daysLeft <= 0:
		cs.Status = "expired"
	case daysLeft <= certExpiringDays:
		cs.Status = "expiring"
	default:
		cs.Status = "valid"
	}
	return cs
}
