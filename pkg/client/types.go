package client

// ClientConfig holds the connection settings for a ChatClient.
type ClientConfig struct {
	// ServerURL is the websocket endpoint, e.g. ws://localhost:8080/ws.
	ServerURL string
	// Username is the display identity sent by Register.
	Username string
	// UserAgent identifies the client to the server; optional.
	UserAgent string
}
