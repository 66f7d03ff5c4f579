package signing

import (
	"fmt"
	"net/http"
	"time"
)

// checkTimestamps applies the clock skew tolerance to the created and expires
// parameters and to the Date header of req. now is the single clock reading
// for the whole parse.
func checkTimestamps(req RequestView, p Params, now time.Time, skew time.Duration) error {
	skewSeconds := int64(skew / time.Second)
	limit := time.Duration(skewSeconds) * time.Second
	unix := now.Unix()

	// Compared without subtracting from the parameters, which may be any
	// int64 in the legacy dialect.
	if p.Created != nil && *p.Created > unix+skewSeconds {
		return fmt.Errorf("%w: created lies in the future", ErrExpiredRequest)
	}

	if p.Expires != nil && *p.Expires < unix-skewSeconds {
		return fmt.Errorf("%w: request expired", ErrExpiredRequest)
	}

	dates := req.HeaderValues("date")
	switch len(dates) {
	case 0:
		return nil
	case 1:
	default:
		return fmt.Errorf("%w: date was sent %d times", ErrInvalidHeader, len(dates))
	}

	date, err := http.ParseTime(dates[0])
	if err != nil {
		return fmt.Errorf("%w: unable to parse date %q", ErrInvalidHeader, dates[0])
	}

	diff := now.Sub(date)
	if diff < 0 {
		diff = -diff
	}
	if diff > limit {
		return fmt.Errorf("%w: clock skew of %s was greater than %s", ErrExpiredRequest, diff, limit)
	}

	return nil
}
