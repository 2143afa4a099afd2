package model

// Role is the role attribute attached to every authenticated actor
type Role string

const (
	RoleUser       Role = "user"
	RoleTechnician Role = "technician"
	RoleRecycler   Role = "recycler"
	RoleEducator   Role = "educator"
	RoleAdmin      Role = "admin"
)

// Status represents a request's lifecycle status
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAssigned   Status = "ASSIGNED"
	StatusDiagnosing Status = "DIAGNOSING"
	StatusRepairing  Status = "REPAIRING"
	StatusAccepted   Status = "ACCEPTED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Actor is an authenticated identity with a role and a points balance
type Actor struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      Role   `json:"role"`
	Points    int    `json:"points"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// RepairRequest represents a device-repair request
type RepairRequest struct {
	ID                 string                 `json:"id"`
	RequesterID        string                 `json:"requesterId"`
	HandlerID          *string                `json:"handlerId,omitempty"`
	Status             Status                 `json:"status"`
	Payload            map[string]interface{} `json:"payload"`
	EstimateCost       *float64               `json:"estimateCost,omitempty"`
	EstimateCompletion *string                `json:"estimateCompletion,omitempty"`
	CreatedAt          string                 `json:"createdAt,omitempty"`
	UpdatedAt          string                 `json:"updatedAt,omitempty"`
}

// PickupRequest represents an e-waste collection request
type PickupRequest struct {
	ID          string                 `json:"id"`
	RequesterID string                 `json:"requesterId"`
	HandlerID   *string                `json:"handlerId,omitempty"`
	Status      Status                 `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	Quantity    int                    `json:"quantity"`
	CreatedAt   string                 `json:"createdAt,omitempty"`
	UpdatedAt   string                 `json:"updatedAt,omitempty"`
}

// Reward is a redeemable catalog entry
type Reward struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Cost      int    `json:"cost"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Redemption records a reward claimed against a points balance
type Redemption struct {
	ID       string `json:"id"`
	ActorID  string `json:"actorId"`
	RewardID string `json:"rewardId"`
	Code     string `json:"code"`
	IssuedAt string `json:"issuedAt,omitempty"`
}
