package domain

// Session — членство одного соединения в одной комнате. Не персистится.
type Session struct {
	ConnectionID string
	RoomID       string
	UserID       string
	UserName     string
}
