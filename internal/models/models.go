package models

// Item is one entry of an owner's current shopping list.
type Item struct {
	ID          int64  `db:"id"`
	OwnerID     int64  `db:"user_id"`
	ProductName string `db:"product_name"`
}

// HistoryEntry remembers a product an owner has added at least once.
type HistoryEntry struct {
	OwnerID     int64  `db:"user_id"`
	ProductName string `db:"product_name"`
	Count       int    `db:"count"`
}

// ShareToken is the opaque reference that opens an owner's list.
type ShareToken struct {
	OwnerID int64  `db:"user_id"`
	Token   string `db:"token"`
}
