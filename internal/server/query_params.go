package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	driverdomain "github.com/openfleet/tally/internal/driver/domain"
)

func parseDriverID(c *gin.Context) (int64, error) {
	raw := strings.TrimSpace(c.Param("id"))
	driverID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || driverID <= 0 {
		return 0, driverdomain.ErrInvalidDriverID
	}
	return driverID, nil
}

// parseOptionalTime accepts RFC 3339 timestamps or bare dates. A bare date
// used as an upper bound extends to the end of that day.
func parseOptionalTime(value string, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	if at, err := time.Parse(time.RFC3339, value); err == nil {
		utc := at.UTC()
		return &utc, nil
	}

	at, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	at = at.UTC()
	if endOfDay {
		at = at.Add(24*time.Hour - time.Nanosecond)
	}
	return &at, nil
}
