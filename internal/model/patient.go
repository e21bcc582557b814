package model

type Patient struct {
	Base
	Name         string `db:"name" json:"name"`
	Email        string `db:"email" json:"email,omitempty"`
	Phone        string `db:"phone" json:"phone,omitempty"`
	PasswordHash string `db:"password_hash" json:"-"`
}

// PatientMatch carries the fields used to find or create a patient
type PatientMatch struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone"`
}

// Contact is where appointment notifications are delivered
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (p *Patient) Contact() Contact {
	return Contact{Name: p.Name, Email: p.Email, Phone: p.Phone}
}
