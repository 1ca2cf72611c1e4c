package domain

type Delivery struct {
	Meta
	BillID       string
	CustomerName string
	Address      string
	Status       string
	ScheduledAt  int64
}

type Bill struct {
	Meta
	CustomerName string
	TotalMinor   int64
	Currency     string
	Status       string
	IssuedAt     int64
}
