package model

import "time"

// PushSubscription はWebプッシュ通知の購読情報を表す。
// Endpointはブラウザごとに一意で、再登録時はUPSERTされる。
type PushSubscription struct {
	ID        string
	Endpoint  string
	P256dh    string
	Auth      string
	UserAgent string
	IsActive  bool
	CreatedAt time.Time
}

// Newsletter はニュースレターの購読者を表す。
type Newsletter struct {
	ID        string
	Email     string
	IsActive  bool
	CreatedAt time.Time
}
