package proto

import "fmt"

// DefaultBaseURL is the production euphoria endpoint.
const DefaultBaseURL = "wss://euphoria.io"

// RoomURL builds the websocket URL for a room.
//
// Private PM rooms are addressed with a "pm:" prefix. The human flag
// (?h=1) tells the server the connection belongs to a person rather
// than a bot, which affects how the session is listed.
func RoomURL(baseURL, room string, private, human bool) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if private {
		room = "pm:" + room
	}
	url := fmt.Sprintf("%s/room/%s/ws", baseURL, room)
	if human {
		url += "?h=1"
	}
	return url
}
