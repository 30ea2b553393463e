package relay

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformedAuth = errors.New("malformed auth response")

const (
	idMarker    = "ID = "
	colorMarker = "Color = "
)

// AuthResult is what the backend's auth sentence carries.
type AuthResult struct {
	PlayerID int
	Color    string
}

// ParseAuthResponse extracts "ID = <int>," and "Color = <token>" from the backend's
// success text, e.g. "Authenticated: ID = 7, Color = Black". The color runs to the
// end of the text. Anything else is ErrMalformedAuth.
func ParseAuthResponse(body string) (AuthResult, error) {
	_, afterID, ok := strings.Cut(body, idMarker)
	if !ok {
		return AuthResult{}, fmt.Errorf("%w: no %q", ErrMalformedAuth, strings.TrimSpace(idMarker))
	}
	rawID, _, ok := strings.Cut(afterID, ",")
	if !ok {
		return AuthResult{}, fmt.Errorf("%w: player id not terminated by comma", ErrMalformedAuth)
	}
	id, err := strconv.Atoi(strings.TrimSpace(rawID))
	if err != nil {
		return AuthResult{}, fmt.Errorf("%w: player id %q", ErrMalformedAuth, rawID)
	}

	_, afterColor, ok := strings.Cut(body, colorMarker)
	if !ok {
		return AuthResult{}, fmt.Errorf("%w: no %q", ErrMalformedAuth, strings.TrimSpace(colorMarker))
	}
	color := strings.TrimSpace(afterColor)
	if color == "" {
		return AuthResult{}, fmt.Errorf("%w: empty color", ErrMalformedAuth)
	}
	return AuthResult{PlayerID: id, Color: color}, nil
}
