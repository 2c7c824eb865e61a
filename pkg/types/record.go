package types

import "time"

// Record is a flat random document used by the single/bulk insert benchmarks.
type Record struct {
	// ID is a client-assigned UUID string; empty lets the store assign one
	ID string `json:"_id,omitempty" bson:"_id,omitempty"`

	Name     string  `json:"name" bson:"name"`
	Email    string  `json:"email" bson:"email"`
	Phone    string  `json:"phone" bson:"phone"`
	Address  Address `json:"address" bson:"address"`
	Company  string  `json:"company" bson:"company"`
	JobTitle string  `json:"jobTitle" bson:"jobTitle"`
	Bio      string  `json:"bio" bson:"bio"`
	Website  string  `json:"website" bson:"website"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`

	IsActive bool     `json:"isActive" bson:"isActive"`
	Age      int64    `json:"age" bson:"age"`
	Salary   float64  `json:"salary" bson:"salary"`
	Tags     []string `json:"tags" bson:"tags"`
	Avatar   string   `json:"avatar" bson:"avatar"`

	Coordinates Coordinates `json:"coordinates" bson:"coordinates"`
}

// Address is the postal address embedded in a Record.
type Address struct {
	Street  string `json:"street" bson:"street"`
	City    string `json:"city" bson:"city"`
	State   string `json:"state" bson:"state"`
	ZipCode string `json:"zipCode" bson:"zipCode"`
	Country string `json:"country" bson:"country"`
}

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

// RecordTags is the closed set of tags a Record draws from.
var RecordTags = []string{"tech", "finance", "health", "education", "entertainment"}
