package response

type StandardResponse struct {
	Status    StatusEnum `json:"status"`
	ErrorCode int        `json:"errorCode"`
	Message   string     `json:"message"`
	Data      any        `json:"data"`
	Errors    []Errors   `json:"errors"`
}

type StatusEnum string

const (
	StatusSuccess StatusEnum = "SUCCESS"
	StatusFailed  StatusEnum = "FAILED"
)

type Errors struct {
	ErrorCode int    `json:"errorCode"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
}

func Success(data any) StandardResponse {
	return StandardResponse{
		Status:  StatusSuccess,
		Message: "Success",
		Data:    data,
		Errors:  []Errors{},
	}
}

// Failure builds an error envelope; the first error supplies the top-level code and message
func Failure(data any, errs []Errors) StandardResponse {
	resp := StandardResponse{
		Status:    StatusFailed,
		ErrorCode: 500,
		Message:   "Internal server error",
		Data:      data,
		Errors:    errs,
	}
	if len(errs) > 0 {
		resp.ErrorCode = errs[0].ErrorCode
		resp.Message = errs[0].Message
	} else {
		resp.Errors = []Errors{}
	}
	return resp
}
