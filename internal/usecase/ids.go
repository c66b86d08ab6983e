package usecase

import (
	"time"

	"github.com/google/uuid"
)

func newID(gen func() string) string {
	if gen != nil {
		return gen()
	}
	return uuid.NewString()
}

func clock(now func() time.Time) time.Time {
	if now != nil {
		return now()
	}
	return time.Now().UTC()
}
