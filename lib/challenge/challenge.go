package challenge

import "time"

// Challenge is one outstanding email passcode confirmation.
//
// Reference is the correlation handle the backend returned when it sent the
// email. It is not the passcode: the portal never sees the code itself.
type Challenge struct {
	Reference         string    `json:"reference"`
	IssuedAt          time.Time `json:"issuedAt"`
	ExpiresAt         time.Time `json:"expiresAt"`
	AttemptsRemaining int       `json:"attemptsRemaining"`
}

// Expired reports whether the passcode window has closed at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Exhausted reports whether every attempt has been used.
func (c *Challenge) Exhausted() bool {
	return c.AttemptsRemaining <= 0
}

// TimeLeft is how long the passcode stays valid, never negative.
func (c *Challenge) TimeLeft(now time.Time) time.Duration {
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
