// Package model holds the records the storage layer persists.
//
// The engine packages never import model: a Run record is written by the
// run service after a program has finished, from the executor's Report.
package model

import "time"

// Sketch is a saved learner program.
type Sketch struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	UserID      string    `json:"userId,omitempty"` // empty for anonymous sketches
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// OwnedBy reports whether userID may change the sketch. Anonymous sketches
// can be changed by anyone.
func (s *Sketch) OwnedBy(userID string) bool {
	return s.UserID == "" || s.UserID == userID
}
