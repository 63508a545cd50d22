package dto

// PaginationRequest is bound from ?limit=&next_token= on list routes
type PaginationRequest struct {
	Limit     int    `form:"limit" binding:"omitempty,min=1"`
	NextToken string `form:"next_token"`
}

// PaginationResponse represents common pagination metadata
type PaginationResponse struct {
	Count     int    `json:"count"`
	NextToken string `json:"next_token,omitempty"`
}
