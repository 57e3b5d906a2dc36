// Package domain defines the persistence models for users, tickets, ticket
// reports, room messages, and SOS alerts. These types are mapped with GORM
// and form the data layer consumed by the realtime dispatch core.
//
// Column names follow the legacy schema (user_id, teacher_id, is_teacher,
// message_text, lat/long) so existing databases and clients keep working.
package domain

import "time"

// User is an account known to the system. The core only ever reads users;
// registration and credential storage live outside this service.
//
// Fields:
//   - ID: auto-increment primary key.
//   - Email: unique login identifier.
//   - Name: display name shown next to chat messages.
//   - PasswordHash: bcrypt hash owned by the account service (never serialized).
//   - Phone: contact number, included in SOS alerts.
//   - IsResponder: marks users eligible for ticket assignment.
type User struct {
	ID           int64     `json:"user_id"      gorm:"column:user_id;primaryKey;autoIncrement"`
	Email        string    `json:"email"        gorm:"type:varchar(255);not null;uniqueIndex"`
	Name         string    `json:"name"         gorm:"type:varchar(255);not null"`
	PasswordHash []byte    `json:"-"            gorm:"column:hashed_password"`
	Phone        string    `json:"phone_number" gorm:"column:phone_number;type:varchar(32);not null"`
	IsResponder  bool      `json:"is_teacher"   gorm:"column:is_teacher;not null;default:false;index"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Ticket is a help-request session between a requester and the responder it
// was assigned to. Open is the single source of truth for whether the
// ticket's room may accept new members; once false it never flips back.
type Ticket struct {
	ID          int64      `json:"ticket_id"    gorm:"column:ticket_id;primaryKey;autoIncrement"`
	RequesterID int64      `json:"user_id"      gorm:"column:user_id;not null;index"`
	ResponderID int64      `json:"teacher_id"   gorm:"column:teacher_id;not null;index:idx_responder_open,priority:1"`
	Anonymous   bool       `json:"is_anonymous" gorm:"column:is_anonymous;not null;default:false"`
	Open        bool       `json:"is_open"      gorm:"column:is_open;not null;index:idx_responder_open,priority:2"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`

	Requester User `json:"-" gorm:"foreignKey:RequesterID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Responder User `json:"-" gorm:"foreignKey:ResponderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Ticket.
func (Ticket) TableName() string { return "tickets" }

// TicketReport is the initial field report filed with a ticket. Its
// coordinates are one of the two point sources of the map view.
type TicketReport struct {
	ID        int64     `json:"report_id"   gorm:"column:report_id;primaryKey;autoIncrement"`
	TicketID  int64     `json:"ticket_id"   gorm:"column:ticket_id;not null;uniqueIndex"`
	Text      string    `json:"report_text" gorm:"column:report_text;type:text;not null"`
	Lat       float64   `json:"lat"         gorm:"column:lat;not null"`
	Long      float64   `json:"long"        gorm:"column:long;not null"`
	CreatedAt time.Time `json:"created_at"`

	Ticket Ticket `json:"-" gorm:"foreignKey:TicketID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for TicketReport.
func (TicketReport) TableName() string { return "ticket_reports" }

// Message is a single chat line posted to a room. Messages are immutable;
// within a room, ascending ID is persistence order.
//
// Room holds the room identity ("global" or "ticket:<id>"). TicketID is set
// only for ticket-room messages so history can be queried per ticket.
type Message struct {
	ID        int64     `json:"message_id"          gorm:"column:message_id;primaryKey;autoIncrement"`
	Room      string    `json:"room"                gorm:"type:varchar(64);not null;index:idx_room_msgs,priority:1"`
	TicketID  *int64    `json:"ticket_id,omitempty" gorm:"column:ticket_id;index"`
	UserID    int64     `json:"user_id"             gorm:"column:user_id;not null;index"`
	Text      string    `json:"message_text"        gorm:"column:message_text;type:text;not null"`
	CreatedAt time.Time `json:"created_at"          gorm:"index:idx_room_msgs,priority:2"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// SOS is an emergency alert raised by a user at a location. A user has at
// most one open SOS at a time.
type SOS struct {
	ID        int64      `json:"sos_id"   gorm:"column:sos_id;primaryKey;autoIncrement"`
	UserID    int64      `json:"user_id"  gorm:"column:user_id;not null;index:idx_sos_user_open,priority:1"`
	Lat       float64    `json:"lat"      gorm:"column:lat;not null"`
	Long      float64    `json:"long"     gorm:"column:long;not null"`
	Open      bool       `json:"is_open"  gorm:"column:is_open;not null;index:idx_sos_user_open,priority:2"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for SOS.
func (SOS) TableName() string { return "sos" }

// ResponderLoad is a responder together with the number of tickets currently
// open against them. It is a query result, not a table.
type ResponderLoad struct {
	ResponderID int64 `json:"teacher_id"   gorm:"column:teacher_id"`
	OpenTickets int64 `json:"open_tickets" gorm:"column:open_tickets"`
}

// GeoPoint is a located event (an SOS or a ticket report) as read for the
// map view.
type GeoPoint struct {
	Kind      string    `json:"kind"       gorm:"column:kind"`
	Lat       float64   `json:"lat"        gorm:"column:lat"`
	Long      float64   `json:"long"       gorm:"column:long"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}
