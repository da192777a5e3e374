package store

import "time"

// Expense is one negative (spend) transaction from the bank's export,
// normalized to a unix-millisecond timestamp.
type Expense struct {
	ID          int64
	Timestamp   int64 // unix milliseconds
	CardNumber  string
	Amount      float64
	Description string
}

// Category is a spending category without its keywords.
type Category struct {
	ID    int64
	Title string
}

// CategoryKeywords is a category together with the keywords that map
// transaction descriptions onto it.
type CategoryKeywords struct {
	ID       int64
	Title    string
	Keywords []string
}

// ErrorRecord is the last automation failure, surfaced once to a UI poller.
type ErrorRecord struct {
	ID         int64
	Text       string
	Time       time.Time
	IsReceived bool
}

// User is a web account, optionally linked to a Telegram identity and a
// bank card.
type User struct {
	ID         int64
	Username   string
	Password   string
	Role       string
	TG         string
	CardNumber string
}
