package model

// Client is a read-only view of the CRM client directory.
type Client struct {
	ID    string `json:"id" gorm:"column:id"`
	Code  string `json:"code,omitempty" gorm:"column:client_code"`
	Name  string `json:"name" gorm:"column:name"`
	Email string `json:"email" gorm:"column:email"`
}

func (Client) TableName() string {
	return "clients"
}
