package domain

import "time"

type Schedule struct {
	ID            string    `json:"id"`
	RouteID       string    `json:"route_id"`
	BusID         string    `json:"bus_id"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureTime time.Time `json:"departure_time"`
	ArrivalTime   time.Time `json:"arrival_time"`
}
