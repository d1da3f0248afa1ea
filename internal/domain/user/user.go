package user

// Profile is the platform-reported identity of a linked account.
type Profile struct {
	Username string         `json:"username"`
	Title    string         `json:"title,omitempty"`
	Ratings  map[string]int `json:"ratings,omitempty"`
}

// Preferences is the only state the service persists: linked account
// identifiers, a cached access credential and the board theme.
type Preferences struct {
	LichessUsername  string `json:"lichess_username,omitempty"`
	ChesscomUsername string `json:"chesscom_username,omitempty"`
	LichessToken     string `json:"lichess_token,omitempty"`
	BoardTheme       string `json:"board_theme,omitempty"`
}
