package models

import (
	"gorm.io/gorm"
)

// ConsultationMessage is a chat message exchanged inside an appointment.
// Clients poll for new messages with an id cursor; there is no streaming
// transport.
type ConsultationMessage struct {
	gorm.Model
	AppointmentID uint   `gorm:"column:appointment_id;not null;index" json:"appointment_id"`
	SenderID      uint   `gorm:"column:sender_id;not null" json:"sender_id"`
	Content       string `gorm:"column:content;type:text;not null" json:"content"`

	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

func (ConsultationMessage) TableName() string {
	return "consultation_messages"
}
