package models

import "time"

// BranchAssociation is the active binding between a ticket and a branch
// in the workspace (per-project) tier. Repository fields are optional:
// a workspace association implicitly belongs to the project it was
// created in.
type BranchAssociation struct {
	TicketID       string    `json:"ticketId"`
	BranchName     string    `json:"branchName"`
	LastUpdated    time.Time `json:"lastUpdated"`
	IsAutoDetected bool      `json:"isAutoDetected"`
	Repository     string    `json:"repository,omitempty"`
	RepositoryPath string    `json:"repositoryPath,omitempty"`
}

// GlobalBranchAssociation is the cross-project variant. Repository fields
// are mandatory here since a global entry must say which repository the
// branch lives in.
type GlobalBranchAssociation struct {
	TicketID       string    `json:"ticketId"`
	BranchName     string    `json:"branchName"`
	Repository     string    `json:"repository"`
	RepositoryPath string    `json:"repositoryPath"`
	LastUpdated    time.Time `json:"lastUpdated"`
	IsAutoDetected bool      `json:"isAutoDetected"`
}

// HistoryBranch is one branch ever linked to a ticket. At most one entry
// per ticket has IsActive set.
type HistoryBranch struct {
	BranchName     string    `json:"branchName"`
	AssociatedAt   time.Time `json:"associatedAt"`
	LastUsed       time.Time `json:"lastUsed"`
	IsActive       bool      `json:"isActive"`
	Repository     string    `json:"repository,omitempty"`
	RepositoryPath string    `json:"repositoryPath,omitempty"`
}

// BranchHistory records every branch ever linked to a ticket. Entries are
// never removed by unlinking, only flagged inactive.
type BranchHistory struct {
	TicketID string          `json:"ticketId"`
	Branches []HistoryBranch `json:"branches"`
}
