package httpapi

import (
	"errors"
	"strconv"

	"github.com/google/uuid"

	"github.com/Drew-Chase/playarr/internal/v1/party"
)

func parseRoomID(raw string) (uuid.UUID, error) {
	return uuid.Parse(raw)
}

func parseUserID(raw string) (party.UserID, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New("invalid user id")
	}
	return party.UserID(n), nil
}
