package dto

// Response is the envelope of every API response
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Page    *PageInfo  `json:"page,omitempty"`
}

// ErrorInfo describes a failed request
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Provider  string `json:"provider,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// PageInfo describes an offset page. There is no total count; HasMore tells
// whether a following page exists.
type PageInfo struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// NewSuccessResponse wraps data in a success envelope
func NewSuccessResponse(data any) Response {
	return Response{Success: true, Data: data}
}

// NewPageResponse wraps one page of data
func NewPageResponse(data any, limit, offset int, hasMore bool) Response {
	return Response{
		Success: true,
		Data:    data,
		Page:    &PageInfo{Limit: limit, Offset: offset, HasMore: hasMore},
	}
}

// NewErrorResponse builds an error envelope
func NewErrorResponse(info ErrorInfo) Response {
	return Response{Success: false, Error: &info}
}

// PageQuery binds limit/offset query parameters
type PageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// SearchQuery binds a search term with paging
type SearchQuery struct {
	Query string `form:"q" binding:"max=255"`
	PageQuery
}

// IDsQuery binds a comma separated id list
type IDsQuery struct {
	HouseholdIDs string `form:"household_ids"`
}

// IDRequest binds the :id path parameter
type IDRequest struct {
	ID string `uri:"id" binding:"required,max=64"`
}
