package models

import "time"

// VirtualAccount is a processor-issued bank account number mapped 1:1 to a
// wallet. Inbound transfers to the account number arrive as webhook credits
// and are resolved back to the owning wallet through this record.
type VirtualAccount struct {
	ID            uint   `gorm:"primarykey" json:"id"`
	WalletID      uint   `gorm:"uniqueIndex;not null" json:"wallet_id"`
	UserID        uint   `gorm:"index;not null" json:"user_id"`
	AccountNumber string `gorm:"uniqueIndex;not null" json:"account_number"`
	AccountName   string `json:"account_name"`
	BankName      string `json:"bank_name"`
	Provider      string `json:"provider"`
	Active        bool   `gorm:"default:true" json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
